package db

import (
	"errors"
	"fmt"
	"time"
)

// Escalation levels. The level is the source of truth for who owns an issue;
// Status only mirrors it for display and query filtering.
const (
	LevelPDO = 0
	LevelTDO = 1
	LevelDDO = 2

	MaxEscalationLevel = LevelDDO
)

// Authority role labels stored in history entries
const (
	RolePDO = "pdo"
	RoleTDO = "tdo"
	RoleDDO = "ddo"
)

// Issue status labels. The escalation labels are derived from the level;
// the closed ones belong to the resolution workflow.
const (
	IssueStatusPending        = "pending"
	IssueStatusEscalatedToTDO = "escalated_to_tdo"
	IssueStatusEscalatedToDDO = "escalated_to_ddo"
	IssueStatusInProgress     = "in_progress"
	IssueStatusResolved       = "resolved"
	IssueStatusClosed         = "closed"
	IssueStatusRejected       = "rejected"
)

// Escalation entry types
const (
	EscalationTypeAuto   = "auto"
	EscalationTypeManual = "manual"
)

// ErrMalformedIssue marks an issue record the engine cannot reason about,
// e.g. one without a creation time or with a level outside 0..2.
var ErrMalformedIssue = errors.New("malformed issue record")

// Issue is the grievance record reported by a villager
type Issue struct {
	ID                   string          `json:"id"`
	Title                string          `json:"title,omitempty"`
	Category             string          `json:"category,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	ResolveDueAt         *time.Time      `json:"resolveDueAt,omitempty"`
	SLADays              int             `json:"slaDays"`
	Status               string          `json:"status"`
	EscalatedLevel       int             `json:"escalatedLevel"`
	ManualEscalationUsed bool            `json:"manualEscalationUsed"`
	Escalation           EscalationState `json:"escalation"`
	UpdatedAt            time.Time       `json:"updatedAt,omitempty"`
}

// EscalationState groups the escalation sub-document of an issue
type EscalationState struct {
	History []EscalationHistoryEntry `json:"history"`
}

// EscalationHistoryEntry is one committed transition. Entries are append-only
// and kept in insertion (chronological) order.
type EscalationHistoryEntry struct {
	Type        string    `json:"type"` // auto, manual
	From        string    `json:"from"`
	To          string    `json:"to"`
	At          time.Time `json:"at"`
	Reason      string    `json:"reason,omitempty"`
	Level       int       `json:"level"`
	RequestedBy string    `json:"requestedBy,omitempty"`
}

// IsClosed reports whether the resolution workflow has finished with the issue
func (i *Issue) IsClosed() bool {
	switch i.Status {
	case IssueStatusResolved, IssueStatusClosed, IssueStatusRejected:
		return true
	}
	return false
}

// Validate fails fast on records the engine must not escalate
func (i *Issue) Validate() error {
	if i.CreatedAt.IsZero() {
		return fmt.Errorf("%w: issue %s has no createdAt", ErrMalformedIssue, i.ID)
	}
	if i.EscalatedLevel < LevelPDO || i.EscalatedLevel > MaxEscalationLevel {
		return fmt.Errorf("%w: issue %s has escalatedLevel %d", ErrMalformedIssue, i.ID, i.EscalatedLevel)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without touching stored state
func (i *Issue) Clone() *Issue {
	c := *i
	if i.ResolveDueAt != nil {
		due := *i.ResolveDueAt
		c.ResolveDueAt = &due
	}
	c.Escalation.History = append([]EscalationHistoryEntry(nil), i.Escalation.History...)
	return &c
}

// ManualEscalationCount counts manual entries in the history
func (i *Issue) ManualEscalationCount() int {
	n := 0
	for _, e := range i.Escalation.History {
		if e.Type == EscalationTypeManual {
			n++
		}
	}
	return n
}

// EscalationUpdate is the full set of escalation fields written by one
// transition. Stores apply it atomically, conditioned on the expected prior
// level and manual flag.
type EscalationUpdate struct {
	ExpectedLevel      int
	ExpectedManualUsed bool

	NewLevel      int
	NewStatus     string
	SetManualUsed bool
	Entry         EscalationHistoryEntry
}

// EscalationResult is returned to callers of both escalation operations
type EscalationResult struct {
	IssueID        string     `json:"issueId"`
	Escalated      bool       `json:"escalated"`
	NewLevel       *int       `json:"newLevel,omitempty"`
	Outcome        string     `json:"outcome"`
	Message        string     `json:"message,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	RemainingDays  int        `json:"remainingDays,omitempty"`
	NextEligibleAt *time.Time `json:"nextEligibleAt,omitempty"`
}

// Escalation outcomes
const (
	OutcomeEscalated       = "escalated"
	OutcomeNotYetEligible  = "not_yet_eligible"
	OutcomeAlreadyUsed     = "already_used"
	OutcomeMaxLevelReached = "max_level_reached"
	OutcomeIssueClosed     = "issue_closed"
)

// EvaluateAutoEscalationRequest is the body of POST evaluate-auto-escalation
type EvaluateAutoEscalationRequest struct {
	IssueID string `json:"issueId" binding:"required"`
}

// RequestManualEscalationRequest is the body of POST request-manual-escalation
type RequestManualEscalationRequest struct {
	IssueID string `json:"issueId" binding:"required"`
	Reason  string `json:"reason"`
}

// Apply writes the update into the issue the same way stores commit it
func (i *Issue) Apply(u EscalationUpdate) {
	i.EscalatedLevel = u.NewLevel
	i.Status = u.NewStatus
	if u.SetManualUsed {
		i.ManualEscalationUsed = true
	}
	i.Escalation.History = append(i.Escalation.History, u.Entry)
	i.UpdatedAt = u.Entry.At
}
