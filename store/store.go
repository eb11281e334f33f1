package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yashwanths814/vital-sub001/db"
)

// DefaultCandidatePageSize is used when ListEscalationCandidates gets no limit
const DefaultCandidatePageSize = 500

var (
	// ErrNotFound is returned when the issue does not exist
	ErrNotFound = errors.New("issue not found")

	// ErrUnavailable is returned when the backing store cannot be reached or
	// timed out. The write is atomic, so retrying is safe.
	ErrUnavailable = errors.New("issue store unavailable")

	// ErrConflict is returned when the escalation fields changed between the
	// read and the conditional write.
	ErrConflict = errors.New("concurrent escalation conflict")

	// ErrInvalidUpdate is returned for an update that skips or exceeds a level
	ErrInvalidUpdate = errors.New("invalid escalation update")

	// ErrInvalidCursor is returned for a page cursor the store did not issue
	ErrInvalidCursor = errors.New("invalid candidate cursor")
)

// CandidatePage is one page of escalation candidates. Next is empty on the
// last page; otherwise it is passed back to fetch the following page.
type CandidatePage struct {
	IDs  []string
	Next string
}

// DecideFunc inspects the issue as read inside the store's transaction and
// returns the update to commit, or nil to leave the issue untouched. It may be
// invoked more than once when the store retries internally, so it must not
// have side effects beyond its return values.
type DecideFunc func(issue *db.Issue) (*db.EscalationUpdate, error)

// IssueStore is the persistence boundary of the escalation engine.
// Escalate is the only operation that mutates escalation fields.
type IssueStore interface {
	// Get loads an issue with its escalation history in chronological order
	Get(ctx context.Context, id string) (*db.Issue, error)

	// Create stores a newly reported issue at level 0 and returns it with its ID
	Create(ctx context.Context, issue *db.Issue) (*db.Issue, error)

	// Escalate runs decide against a consistent read of the issue and commits
	// the returned update atomically: level, status, manual flag and the
	// history entry are written together, and only if the level and manual
	// flag still match the update's expected values. Returns the issue as it
	// is after the call.
	Escalate(ctx context.Context, id string, decide DecideFunc) (*db.Issue, error)

	// ListEscalationCandidates returns one page of IDs of open issues below
	// the top level, starting after cursor ("" for the first page). Paging
	// follows a stable key, so escalating an issue between pages neither
	// skips nor repeats anything.
	ListEscalationCandidates(ctx context.Context, cursor string, limit int) (*CandidatePage, error)

	Close() error
}

// checkExpected guards the conditional write inside a transaction
func checkExpected(issue *db.Issue, u *db.EscalationUpdate) error {
	if issue.EscalatedLevel != u.ExpectedLevel || issue.ManualEscalationUsed != u.ExpectedManualUsed {
		return ErrConflict
	}
	if u.NewLevel != u.ExpectedLevel+1 || u.NewLevel > db.MaxEscalationLevel {
		return ErrInvalidUpdate
	}
	return nil
}

// createdCursor encodes the (created_at, id) keyset position used by the
// memory and Postgres stores
func createdCursor(issue *db.Issue) string {
	return issue.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + issue.ID
}

func parseCreatedCursor(cursor string) (time.Time, string, error) {
	ts, id, ok := strings.Cut(cursor, "|")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return at.UTC(), id, nil
}

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultCandidatePageSize
	}
	return limit
}
