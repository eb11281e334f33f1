package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/yashwanths814/vital-sub001/db"
)

// PostgresStore keeps issues in the issues table and the escalation ledger in
// issue_escalation_history, ordered by seq.
type PostgresStore struct {
	PG *sql.DB
}

func NewPostgresStore(pg *sql.DB) *PostgresStore {
	return &PostgresStore{PG: pg}
}

const selectIssueQuery = `
	SELECT id, COALESCE(title, ''), COALESCE(category, ''), created_at, resolve_due_at,
	       sla_days, status, escalated_level, manual_escalation_used, updated_at
	FROM issues
	WHERE id = $1`

const selectHistoryQuery = `
	SELECT type, from_role, to_role, at, COALESCE(reason, ''), level, COALESCE(requested_by, '')
	FROM issue_escalation_history
	WHERE issue_id = $1
	ORDER BY seq ASC`

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*db.Issue, error) {
	return s.loadIssue(ctx, s.PG, selectIssueQuery, id)
}

func (s *PostgresStore) loadIssue(ctx context.Context, q queryer, query, id string) (*db.Issue, error) {
	var issue db.Issue
	var resolveDueAt, updatedAt sql.NullTime

	err := q.QueryRowContext(ctx, query, id).Scan(
		&issue.ID, &issue.Title, &issue.Category, &issue.CreatedAt, &resolveDueAt,
		&issue.SLADays, &issue.Status, &issue.EscalatedLevel, &issue.ManualEscalationUsed, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, mapPostgresError("failed to get issue", err)
	}
	if resolveDueAt.Valid {
		due := resolveDueAt.Time.UTC()
		issue.ResolveDueAt = &due
	}
	if updatedAt.Valid {
		issue.UpdatedAt = updatedAt.Time.UTC()
	}
	issue.CreatedAt = issue.CreatedAt.UTC()

	rows, err := q.QueryContext(ctx, selectHistoryQuery, id)
	if err != nil {
		return nil, mapPostgresError("failed to get escalation history", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry db.EscalationHistoryEntry
		if err := rows.Scan(&entry.Type, &entry.From, &entry.To, &entry.At, &entry.Reason, &entry.Level, &entry.RequestedBy); err != nil {
			return nil, fmt.Errorf("failed to scan escalation history: %w", err)
		}
		entry.At = entry.At.UTC()
		issue.Escalation.History = append(issue.Escalation.History, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError("failed to read escalation history", err)
	}

	if err := issue.Validate(); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (s *PostgresStore) Create(ctx context.Context, issue *db.Issue) (*db.Issue, error) {
	created := issue.Clone()
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.Status == "" {
		created.Status = db.IssueStatusPending
	}
	if err := created.Validate(); err != nil {
		return nil, err
	}
	created.UpdatedAt = created.CreatedAt

	var resolveDueAt interface{}
	if created.ResolveDueAt != nil {
		resolveDueAt = *created.ResolveDueAt
	}

	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO issues (
			id, title, category, created_at, resolve_due_at, sla_days, status,
			escalated_level, manual_escalation_used, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		created.ID, created.Title, created.Category, created.CreatedAt, resolveDueAt, created.SLADays,
		created.Status, created.EscalatedLevel, created.ManualEscalationUsed, created.UpdatedAt,
	)
	if err != nil {
		return nil, mapPostgresError("failed to insert issue", err)
	}
	return created, nil
}

func (s *PostgresStore) Escalate(ctx context.Context, id string, decide DecideFunc) (*db.Issue, error) {
	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapPostgresError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	issue, err := s.loadIssue(ctx, tx, selectIssueQuery+" FOR UPDATE", id)
	if err != nil {
		return nil, err
	}

	update, err := decide(issue.Clone())
	if err != nil {
		return nil, err
	}
	if update == nil {
		return issue, nil
	}
	if err := checkExpected(issue, update); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE issues
		SET escalated_level = $1,
		    status = $2,
		    manual_escalation_used = $3,
		    updated_at = $4
		WHERE id = $5 AND escalated_level = $6 AND manual_escalation_used = $7`,
		update.NewLevel, update.NewStatus, update.ExpectedManualUsed || update.SetManualUsed, update.Entry.At,
		id, update.ExpectedLevel, update.ExpectedManualUsed,
	)
	if err != nil {
		return nil, mapPostgresError("failed to update issue", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, mapPostgresError("failed to update issue", err)
	}
	if affected == 0 {
		return nil, ErrConflict
	}

	var requestedBy interface{}
	if update.Entry.RequestedBy != "" {
		requestedBy = update.Entry.RequestedBy
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO issue_escalation_history (
			id, issue_id, seq, type, from_role, to_role, at, reason, level, requested_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New().String(), id, len(issue.Escalation.History)+1, update.Entry.Type,
		update.Entry.From, update.Entry.To, update.Entry.At, update.Entry.Reason, update.Entry.Level, requestedBy,
	)
	if err != nil {
		return nil, mapPostgresError("failed to append escalation history", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPostgresError("failed to commit transaction", err)
	}

	issue.Apply(*update)
	return issue, nil
}

const selectCandidatesQuery = `
	SELECT id, created_at
	FROM issues
	WHERE escalated_level < $1
	AND status NOT IN ($2, $3, $4)`

func (s *PostgresStore) ListEscalationCandidates(ctx context.Context, cursor string, limit int) (*CandidatePage, error) {
	limit = pageSize(limit)
	args := []interface{}{db.MaxEscalationLevel, db.IssueStatusResolved, db.IssueStatusClosed, db.IssueStatusRejected}

	query := selectCandidatesQuery
	if cursor != "" {
		afterAt, afterID, err := parseCreatedCursor(cursor)
		if err != nil {
			return nil, err
		}
		query += "\n\tAND (created_at, id) > ($5, $6)"
		args = append(args, afterAt, afterID)
	}
	// one extra row tells whether another page exists
	query += fmt.Sprintf("\n\tORDER BY created_at ASC, id ASC\n\tLIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapPostgresError("failed to list escalation candidates", err)
	}
	defer rows.Close()

	var candidates []*db.Issue
	for rows.Next() {
		var issue db.Issue
		if err := rows.Scan(&issue.ID, &issue.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan escalation candidate: %w", err)
		}
		candidates = append(candidates, &issue)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError("failed to list escalation candidates", err)
	}

	page := &CandidatePage{IDs: []string{}}
	if len(candidates) > limit {
		candidates = candidates[:limit]
		page.Next = createdCursor(candidates[limit-1])
	}
	for _, issue := range candidates {
		page.IDs = append(page.IDs, issue.ID)
	}
	return page, nil
}

func (s *PostgresStore) Close() error {
	return s.PG.Close()
}

// mapPostgresError turns connection-level failures into ErrUnavailable and
// serialization failures into ErrConflict; everything else is wrapped as is.
func mapPostgresError(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%s: %w: %v", msg, ErrUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", msg, ErrUnavailable, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "57":
			return fmt.Errorf("%s: %w: %v", msg, ErrUnavailable, err)
		case "40":
			return fmt.Errorf("%s: %w: %v", msg, ErrConflict, err)
		}
		// unique_violation on the history ledger means another writer won
		if pqErr.Code == "23505" {
			return fmt.Errorf("%s: %w: %v", msg, ErrConflict, err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// PingTimeout bounds the startup connectivity check
const PingTimeout = 5 * time.Second

// OpenPostgres opens and pings the database the way the workers expect it
func OpenPostgres(databaseURL string) (*sql.DB, error) {
	pg, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), PingTimeout)
	defer cancel()
	if err := pg.PingContext(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pg.ExecContext(ctx, "SET TIME ZONE 'UTC'"); err != nil {
		log.Printf("Failed to set timezone to UTC: %v", err)
	}
	return pg, nil
}
