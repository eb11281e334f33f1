package db

import (
	"fmt"
	"time"
)

// Document field names of an issue. The escalation fields are owned by the
// escalation engine; other workflows must not write them.
const (
	FieldTitle                = "title"
	FieldCategory             = "category"
	FieldCreatedAt            = "createdAt"
	FieldResolveDueAt         = "resolveDueAt"
	FieldSLADays              = "slaDays"
	FieldStatus               = "status"
	FieldEscalatedLevel       = "escalatedLevel"
	FieldManualEscalationUsed = "manualEscalationUsed"
	FieldEscalationHistory    = "escalation.history"
	FieldUpdatedAt            = "updatedAt"
)

// IssueFromDocument decodes a raw issue document. Timestamps go through
// ToInstant so the rest of the code only sees time.Time.
func IssueFromDocument(id string, data map[string]interface{}) (*Issue, error) {
	issue := &Issue{
		ID:       id,
		Title:    stringField(data, FieldTitle),
		Category: stringField(data, FieldCategory),
		Status:   stringField(data, FieldStatus),
	}

	raw, ok := data[FieldCreatedAt]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: issue %s has no createdAt", ErrMalformedIssue, id)
	}
	createdAt, err := ToInstant(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: issue %s createdAt: %v", ErrMalformedIssue, id, err)
	}
	issue.CreatedAt = createdAt

	if raw, ok := data[FieldResolveDueAt]; ok && raw != nil {
		if due, err := ToInstant(raw); err == nil {
			issue.ResolveDueAt = &due
		}
	}
	if raw, ok := data[FieldUpdatedAt]; ok && raw != nil {
		if updated, err := ToInstant(raw); err == nil {
			issue.UpdatedAt = updated
		}
	}

	if raw, ok := data[FieldSLADays]; ok && raw != nil {
		n, err := toInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: issue %s slaDays: %v", ErrMalformedIssue, id, err)
		}
		issue.SLADays = int(n)
	}

	if raw, ok := data[FieldEscalatedLevel]; ok && raw != nil {
		n, err := toInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: issue %s escalatedLevel: %v", ErrMalformedIssue, id, err)
		}
		issue.EscalatedLevel = int(n)
	}

	if used, ok := data[FieldManualEscalationUsed].(bool); ok {
		issue.ManualEscalationUsed = used
	}

	if esc, ok := data["escalation"].(map[string]interface{}); ok {
		if items, ok := esc["history"].([]interface{}); ok {
			for idx, item := range items {
				m, ok := item.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("%w: issue %s history[%d] is %T", ErrMalformedIssue, id, idx, item)
				}
				entry, err := historyEntryFromMap(m)
				if err != nil {
					return nil, fmt.Errorf("%w: issue %s history[%d]: %v", ErrMalformedIssue, id, idx, err)
				}
				issue.Escalation.History = append(issue.Escalation.History, entry)
			}
		}
	}

	if err := issue.Validate(); err != nil {
		return nil, err
	}
	return issue, nil
}

// ToDocument encodes an issue using the persisted field layout
func (i *Issue) ToDocument() map[string]interface{} {
	history := make([]interface{}, 0, len(i.Escalation.History))
	for _, e := range i.Escalation.History {
		history = append(history, e.ToMap())
	}
	doc := map[string]interface{}{
		FieldTitle:                i.Title,
		FieldCategory:             i.Category,
		FieldCreatedAt:            i.CreatedAt,
		FieldSLADays:              i.SLADays,
		FieldStatus:               i.Status,
		FieldEscalatedLevel:       i.EscalatedLevel,
		FieldManualEscalationUsed: i.ManualEscalationUsed,
		"escalation": map[string]interface{}{
			"history": history,
		},
	}
	if i.ResolveDueAt != nil {
		doc[FieldResolveDueAt] = *i.ResolveDueAt
	}
	if !i.UpdatedAt.IsZero() {
		doc[FieldUpdatedAt] = i.UpdatedAt
	}
	return doc
}

// ToMap encodes a history entry for document stores
func (e EscalationHistoryEntry) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"type":   e.Type,
		"from":   e.From,
		"to":     e.To,
		"at":     e.At,
		"reason": e.Reason,
		"level":  e.Level,
	}
	if e.RequestedBy != "" {
		m["requestedBy"] = e.RequestedBy
	}
	return m
}

func historyEntryFromMap(m map[string]interface{}) (EscalationHistoryEntry, error) {
	entry := EscalationHistoryEntry{
		Type:        stringField(m, "type"),
		From:        stringField(m, "from"),
		To:          stringField(m, "to"),
		Reason:      stringField(m, "reason"),
		RequestedBy: stringField(m, "requestedBy"),
	}
	at, err := ToInstant(m["at"])
	if err != nil {
		return entry, err
	}
	entry.At = at
	if raw, ok := m["level"]; ok && raw != nil {
		n, err := toInt64(raw)
		if err != nil {
			return entry, err
		}
		entry.Level = int(n)
	}
	return entry, nil
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// DaysToDuration converts whole days to a duration
func DaysToDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
