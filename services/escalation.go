package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/yashwanths814/vital-sub001/db"
	"github.com/yashwanths814/vital-sub001/internal/metrics"
	"github.com/yashwanths814/vital-sub001/store"
)

const (
	// DefaultManualWaitDays is how old an issue must be before the villager
	// may escalate it by hand. It does not depend on the SLA.
	DefaultManualWaitDays = 4

	// DefaultMaxAttempts bounds re-evaluation after write conflicts
	DefaultMaxAttempts = 3

	DefaultManualReason = "Manual escalation requested by villager"
)

// EscalationConfig tunes the engine. Zero values fall back to defaults.
type EscalationConfig struct {
	ManualWaitDays int
	MaxAttempts    int
}

// EscalationEngine moves issues PDO -> TDO -> DDO, automatically once the
// SLA has elapsed or once by villager request, and appends every transition
// to the issue's escalation history.
type EscalationEngine struct {
	Store   store.IssueStore
	SLA     *CategorySLA
	Metrics *metrics.Collector

	manualWaitDays int
	maxAttempts    int
	now            func() time.Time
}

func NewEscalationEngine(issueStore store.IssueStore, sla *CategorySLA, cfg EscalationConfig) *EscalationEngine {
	if sla == nil {
		sla = NewCategorySLA(nil, DefaultSLADays)
	}
	if cfg.ManualWaitDays <= 0 {
		cfg.ManualWaitDays = DefaultManualWaitDays
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &EscalationEngine{
		Store:          issueStore,
		SLA:            sla,
		manualWaitDays: cfg.ManualWaitDays,
		maxAttempts:    cfg.MaxAttempts,
		now:            time.Now,
	}
}

// SetClock replaces the time source used for eligibility
func (e *EscalationEngine) SetClock(now func() time.Time) {
	e.now = now
}

// SetMetrics attaches a metrics collector
func (e *EscalationEngine) SetMetrics(m *metrics.Collector) {
	e.Metrics = m
}

// Eligibility describes whether a transition is allowed right now and, if
// not, how long the caller has to wait.
type Eligibility struct {
	Eligible       bool       `json:"eligible"`
	Outcome        string     `json:"outcome"`
	DaysPassed     int        `json:"daysPassed"`
	RequiredDays   int        `json:"requiredDays,omitempty"`
	RemainingDays  int        `json:"remainingDays,omitempty"`
	NextEligibleAt *time.Time `json:"nextEligibleAt,omitempty"`
}

// EscalationPreview is a read-only view of an issue's escalation state
type EscalationPreview struct {
	IssueID              string                      `json:"issueId"`
	Level                int                         `json:"escalatedLevel"`
	Status               string                      `json:"status"`
	SLADays              int                         `json:"slaDays"`
	ManualEscalationUsed bool                        `json:"manualEscalationUsed"`
	CurrentAuthority     Authority                   `json:"currentAuthority"`
	NextAuthority        *Authority                  `json:"nextAuthority,omitempty"`
	Auto                 Eligibility                 `json:"auto"`
	Manual               Eligibility                 `json:"manual"`
	History              []db.EscalationHistoryEntry `json:"history"`
}

// DaysPassed counts whole days between createdAt and now. A creation time in
// the future (clock skew) counts as zero days.
func DaysPassed(createdAt, now time.Time) int {
	d := now.Sub(createdAt)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// AutoEligibility applies the SLA rule: level L escalates to L+1 once
// daysPassed >= slaDays*(L+1), counted from creation.
func (e *EscalationEngine) AutoEligibility(issue *db.Issue, now time.Time) Eligibility {
	days := DaysPassed(issue.CreatedAt, now)
	elig := Eligibility{DaysPassed: days}

	if issue.IsClosed() {
		elig.Outcome = db.OutcomeIssueClosed
		return elig
	}
	if issue.EscalatedLevel >= db.MaxEscalationLevel {
		elig.Outcome = db.OutcomeMaxLevelReached
		return elig
	}

	sla := e.SLA.Resolve(issue.SLADays, issue.Category)
	elig.RequiredDays = sla * (issue.EscalatedLevel + 1)
	if days >= elig.RequiredDays {
		elig.Eligible = true
		elig.Outcome = db.OutcomeEscalated
		return elig
	}

	next := issue.CreatedAt.Add(db.DaysToDuration(elig.RequiredDays))
	elig.Outcome = db.OutcomeNotYetEligible
	elig.RemainingDays = elig.RequiredDays - days
	elig.NextEligibleAt = &next
	return elig
}

// ManualEligibility applies the one-time villager rule: not used yet, at
// least manualWaitDays old, and not already at the top level.
func (e *EscalationEngine) ManualEligibility(issue *db.Issue, now time.Time) Eligibility {
	days := DaysPassed(issue.CreatedAt, now)
	elig := Eligibility{DaysPassed: days, RequiredDays: e.manualWaitDays}

	switch {
	case issue.IsClosed():
		elig.Outcome = db.OutcomeIssueClosed
	case issue.EscalatedLevel >= db.MaxEscalationLevel:
		elig.Outcome = db.OutcomeMaxLevelReached
	case issue.ManualEscalationUsed:
		elig.Outcome = db.OutcomeAlreadyUsed
	case days < e.manualWaitDays:
		next := issue.CreatedAt.Add(db.DaysToDuration(e.manualWaitDays))
		elig.Outcome = db.OutcomeNotYetEligible
		elig.RemainingDays = e.manualWaitDays - days
		elig.NextEligibleAt = &next
	default:
		elig.Eligible = true
		elig.Outcome = db.OutcomeEscalated
	}
	return elig
}

// EvaluateAutoEscalation escalates the issue by one level if its SLA
// threshold for the next level has passed. Not being eligible is reported in
// the result, not as an error.
func (e *EscalationEngine) EvaluateAutoEscalation(ctx context.Context, issueID string) (*db.EscalationResult, error) {
	return e.escalate(ctx, issueID, db.EscalationTypeAuto, "", "")
}

// RequestManualEscalation performs the villager's one-time escalation.
// Waiting states come back as *IneligibleError wrapping ErrAlreadyUsed,
// ErrNotYetEligible, ErrMaxLevelReached or ErrIssueClosed.
func (e *EscalationEngine) RequestManualEscalation(ctx context.Context, issueID, reason, requestedBy string) (*db.EscalationResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultManualReason
	}
	return e.escalate(ctx, issueID, db.EscalationTypeManual, reason, requestedBy)
}

func (e *EscalationEngine) escalate(ctx context.Context, issueID, kind, reason, requestedBy string) (*db.EscalationResult, error) {
	if issueID == "" {
		return nil, fmt.Errorf("%w: empty issue id", store.ErrNotFound)
	}

	for attempt := 1; ; attempt++ {
		now := e.now().UTC()
		var result *db.EscalationResult

		_, err := e.Store.Escalate(ctx, issueID, func(issue *db.Issue) (*db.EscalationUpdate, error) {
			if err := issue.Validate(); err != nil {
				return nil, err
			}
			update, res, err := e.decide(issue, kind, reason, requestedBy, now)
			result = res
			return update, err
		})

		if err == nil {
			e.record(kind, result)
			return result, nil
		}

		if errors.Is(err, store.ErrConflict) {
			e.Metrics.RecordConflict()
			if attempt < e.maxAttempts {
				log.Printf("WARNING: Escalation conflict on issue %s (attempt %d/%d), re-evaluating", issueID, attempt, e.maxAttempts)
				continue
			}
			return nil, fmt.Errorf("escalation of issue %s gave up after %d attempts: %w", issueID, attempt, err)
		}

		var ie *IneligibleError
		if errors.As(err, &ie) {
			e.Metrics.RecordRejection(ie.Outcome)
			return nil, ie
		}
		return nil, err
	}
}

// decide computes the update for one evaluation of the issue. It is pure:
// the store may call it again on a fresh read.
func (e *EscalationEngine) decide(issue *db.Issue, kind, reason, requestedBy string, now time.Time) (*db.EscalationUpdate, *db.EscalationResult, error) {
	var elig Eligibility
	if kind == db.EscalationTypeManual {
		elig = e.ManualEligibility(issue, now)
	} else {
		elig = e.AutoEligibility(issue, now)
	}

	if !elig.Eligible {
		res := &db.EscalationResult{
			IssueID:        issue.ID,
			Escalated:      false,
			Outcome:        elig.Outcome,
			Message:        ineligibleMessage(issue, elig, kind),
			RemainingDays:  elig.RemainingDays,
			NextEligibleAt: elig.NextEligibleAt,
		}
		if kind == db.EscalationTypeManual {
			return nil, res, &IneligibleError{
				Kind:          manualOutcomeError(elig.Outcome),
				Outcome:       elig.Outcome,
				RemainingDays: elig.RemainingDays,
				Result:        res,
			}
		}
		return nil, res, nil
	}

	from, err := AuthorityForLevel(issue.EscalatedLevel)
	if err != nil {
		return nil, nil, err
	}
	to, ok := NextAuthority(issue.EscalatedLevel)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no authority above level %d", ErrInvalidLevel, issue.EscalatedLevel)
	}
	status, err := StatusForLevel(to.Level)
	if err != nil {
		return nil, nil, err
	}

	if kind == db.EscalationTypeAuto {
		reason = fmt.Sprintf("SLA period of %d day(s) elapsed (%d day(s) since report)", elig.RequiredDays, elig.DaysPassed)
	}

	update := &db.EscalationUpdate{
		ExpectedLevel:      issue.EscalatedLevel,
		ExpectedManualUsed: issue.ManualEscalationUsed,
		NewLevel:           to.Level,
		NewStatus:          status,
		SetManualUsed:      kind == db.EscalationTypeManual,
		Entry: db.EscalationHistoryEntry{
			Type:        kind,
			From:        from.Role,
			To:          to.Role,
			At:          now,
			Reason:      reason,
			Level:       to.Level,
			RequestedBy: requestedBy,
		},
	}

	newLevel := to.Level
	res := &db.EscalationResult{
		IssueID:   issue.ID,
		Escalated: true,
		NewLevel:  &newLevel,
		Outcome:   db.OutcomeEscalated,
		Message:   fmt.Sprintf("Issue escalated to %s", to.Name),
		Reason:    reason,
	}
	return update, res, nil
}

func (e *EscalationEngine) record(kind string, res *db.EscalationResult) {
	if res == nil {
		return
	}
	if res.Escalated {
		e.Metrics.RecordEscalation(kind)
		log.Printf("SUCCESS: %s escalation of issue %s to level %d", kind, res.IssueID, *res.NewLevel)
		return
	}
	e.Metrics.RecordRejection(res.Outcome)
}

// Preview reports the escalation state of an issue without changing it
func (e *EscalationEngine) Preview(ctx context.Context, issueID string) (*EscalationPreview, error) {
	issue, err := e.Store.Get(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if err := issue.Validate(); err != nil {
		return nil, err
	}

	current, err := AuthorityForLevel(issue.EscalatedLevel)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()

	preview := &EscalationPreview{
		IssueID:              issue.ID,
		Level:                issue.EscalatedLevel,
		Status:               issue.Status,
		SLADays:              e.SLA.Resolve(issue.SLADays, issue.Category),
		ManualEscalationUsed: issue.ManualEscalationUsed,
		CurrentAuthority:     current,
		Auto:                 e.AutoEligibility(issue, now),
		Manual:               e.ManualEligibility(issue, now),
		History:              issue.Escalation.History,
	}
	if next, ok := NextAuthority(issue.EscalatedLevel); ok {
		preview.NextAuthority = &next
	}
	if preview.History == nil {
		preview.History = []db.EscalationHistoryEntry{}
	}
	return preview, nil
}

func manualOutcomeError(outcome string) error {
	switch outcome {
	case db.OutcomeAlreadyUsed:
		return ErrAlreadyUsed
	case db.OutcomeMaxLevelReached:
		return ErrMaxLevelReached
	case db.OutcomeIssueClosed:
		return ErrIssueClosed
	}
	return ErrNotYetEligible
}

func ineligibleMessage(issue *db.Issue, elig Eligibility, kind string) string {
	switch elig.Outcome {
	case db.OutcomeIssueClosed:
		return fmt.Sprintf("Issue is %s; escalation is no longer possible", issue.Status)
	case db.OutcomeMaxLevelReached:
		return "Issue is already with the District Development Officer; no further escalation"
	case db.OutcomeAlreadyUsed:
		return "Manual escalation has already been used for this issue"
	}

	next, _ := NextAuthority(issue.EscalatedLevel)
	if kind == db.EscalationTypeManual {
		return fmt.Sprintf("Manual escalation to %s available in %d day(s)", strings.ToUpper(next.Role), elig.RemainingDays)
	}
	return fmt.Sprintf("Auto-escalation to %s in %d day(s)", strings.ToUpper(next.Role), elig.RemainingDays)
}
