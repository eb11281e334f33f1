package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueFromDocument(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	escalatedAt := created.Add(8 * 24 * time.Hour)

	data := map[string]interface{}{
		"title":                "Broken hand pump",
		"category":             "water_supply",
		"createdAt":            map[string]interface{}{"_seconds": float64(created.Unix()), "_nanoseconds": float64(0)},
		"slaDays":              int64(3),
		"status":               IssueStatusEscalatedToTDO,
		"escalatedLevel":       int64(1),
		"manualEscalationUsed": true,
		"escalation": map[string]interface{}{
			"history": []interface{}{
				map[string]interface{}{
					"type":        EscalationTypeManual,
					"from":        RolePDO,
					"to":          RoleTDO,
					"at":          escalatedAt.Format(time.RFC3339),
					"reason":      "No response",
					"level":       int64(1),
					"requestedBy": "villager-1",
				},
			},
		},
	}

	issue, err := IssueFromDocument("issue-1", data)
	require.NoError(t, err)

	assert.Equal(t, "issue-1", issue.ID)
	assert.Equal(t, "Broken hand pump", issue.Title)
	assert.True(t, created.Equal(issue.CreatedAt))
	assert.Equal(t, 3, issue.SLADays)
	assert.Equal(t, LevelTDO, issue.EscalatedLevel)
	assert.True(t, issue.ManualEscalationUsed)
	require.Len(t, issue.Escalation.History, 1)

	entry := issue.Escalation.History[0]
	assert.Equal(t, EscalationTypeManual, entry.Type)
	assert.Equal(t, RolePDO, entry.From)
	assert.Equal(t, RoleTDO, entry.To)
	assert.Equal(t, 1, entry.Level)
	assert.Equal(t, "villager-1", entry.RequestedBy)
	assert.True(t, escalatedAt.Equal(entry.At))
	assert.Equal(t, 1, issue.ManualEscalationCount())
}

func TestIssueFromDocument_DefaultsMissingEscalationFields(t *testing.T) {
	issue, err := IssueFromDocument("issue-2", map[string]interface{}{
		"createdAt": "2024-03-01T09:00:00Z",
		"status":    IssueStatusPending,
	})
	require.NoError(t, err)

	assert.Equal(t, LevelPDO, issue.EscalatedLevel)
	assert.False(t, issue.ManualEscalationUsed)
	assert.Empty(t, issue.Escalation.History)
}

func TestIssueFromDocument_WholeFloats(t *testing.T) {
	issue, err := IssueFromDocument("issue-3", map[string]interface{}{
		"createdAt":      "2024-03-01T09:00:00Z",
		"escalatedLevel": float64(1),
		"slaDays":        float64(7),
	})
	require.NoError(t, err)
	assert.Equal(t, LevelTDO, issue.EscalatedLevel)
	assert.Equal(t, 7, issue.SLADays)
}

func TestIssueFromDocument_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
	}{
		{
			name: "missing createdAt",
			data: map[string]interface{}{"status": IssueStatusPending},
		},
		{
			name: "unparseable createdAt",
			data: map[string]interface{}{"createdAt": "soon"},
		},
		{
			name: "level above DDO",
			data: map[string]interface{}{"createdAt": "2024-03-01T09:00:00Z", "escalatedLevel": int64(3)},
		},
		{
			name: "negative level",
			data: map[string]interface{}{"createdAt": "2024-03-01T09:00:00Z", "escalatedLevel": int64(-1)},
		},
		{
			name: "fractional level",
			data: map[string]interface{}{"createdAt": "2024-03-01T09:00:00Z", "escalatedLevel": 1.7},
		},
		{
			name: "fractional sla days",
			data: map[string]interface{}{"createdAt": "2024-03-01T09:00:00Z", "slaDays": 2.5},
		},
		{
			name: "history entry is not a map",
			data: map[string]interface{}{
				"createdAt":  "2024-03-01T09:00:00Z",
				"escalation": map[string]interface{}{"history": []interface{}{"pdo->tdo"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := IssueFromDocument("bad", tt.data)
			assert.ErrorIs(t, err, ErrMalformedIssue)
		})
	}
}

func TestIssue_ToDocumentRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	issue := &Issue{
		ID:             "issue-3",
		Title:          "Street light out",
		Category:       "street_lights",
		CreatedAt:      created,
		SLADays:        7,
		Status:         IssueStatusEscalatedToTDO,
		EscalatedLevel: LevelTDO,
		Escalation: EscalationState{History: []EscalationHistoryEntry{
			{Type: EscalationTypeAuto, From: RolePDO, To: RoleTDO, At: created.Add(7 * 24 * time.Hour), Level: 1, Reason: "SLA"},
		}},
	}

	doc := issue.ToDocument()
	assert.NotContains(t, doc, FieldResolveDueAt)

	decoded, err := IssueFromDocument(issue.ID, doc)
	require.NoError(t, err)
	assert.Equal(t, issue.EscalatedLevel, decoded.EscalatedLevel)
	assert.Equal(t, issue.Status, decoded.Status)
	assert.Equal(t, issue.Escalation.History, decoded.Escalation.History)
}

func TestIssue_CloneIsDeep(t *testing.T) {
	due := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	issue := &Issue{
		ID:           "issue-4",
		CreatedAt:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		ResolveDueAt: &due,
		Escalation: EscalationState{History: []EscalationHistoryEntry{
			{Type: EscalationTypeAuto, Level: 1},
		}},
	}

	clone := issue.Clone()
	clone.Escalation.History[0].Level = 2
	clone.Escalation.History = append(clone.Escalation.History, EscalationHistoryEntry{Level: 2})
	*clone.ResolveDueAt = due.Add(time.Hour)

	assert.Equal(t, 1, issue.Escalation.History[0].Level)
	assert.Len(t, issue.Escalation.History, 1)
	assert.True(t, due.Equal(*issue.ResolveDueAt))
}

func TestIssue_IsClosed(t *testing.T) {
	for status, closed := range map[string]bool{
		IssueStatusPending:        false,
		IssueStatusEscalatedToTDO: false,
		IssueStatusEscalatedToDDO: false,
		IssueStatusInProgress:     false,
		IssueStatusResolved:       true,
		IssueStatusClosed:         true,
		IssueStatusRejected:       true,
	} {
		assert.Equal(t, closed, (&Issue{Status: status}).IsClosed(), status)
	}
}
