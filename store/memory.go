package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yashwanths814/vital-sub001/db"
)

type memoryRecord struct {
	issue   *db.Issue
	version int64
}

// MemoryStore keeps issues in process. Escalate reads a versioned snapshot,
// runs decide outside the lock and commits only if the version is unchanged,
// which gives the same optimistic behaviour as the database stores.
type MemoryStore struct {
	mu     sync.Mutex
	issues map[string]*memoryRecord

	beforeCommit func(id string)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{issues: make(map[string]*memoryRecord)}
}

// SetBeforeCommit installs a hook that runs between decide and the commit.
// Tests use it to force two writers into the same window.
func (s *MemoryStore) SetBeforeCommit(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeCommit = fn
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*db.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.issues[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.issue.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, issue *db.Issue) (*db.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrUnavailable
	}
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

	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[created.ID] = &memoryRecord{issue: created}
	return created.Clone(), nil
}

func (s *MemoryStore) Escalate(ctx context.Context, id string, decide DecideFunc) (*db.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrUnavailable
	}

	s.mu.Lock()
	rec, ok := s.issues[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	snapshot := rec.issue.Clone()
	version := rec.version
	beforeCommit := s.beforeCommit
	s.mu.Unlock()

	update, err := decide(snapshot.Clone())
	if err != nil {
		return nil, err
	}
	if update == nil {
		return snapshot, nil
	}

	if beforeCommit != nil {
		beforeCommit(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec = s.issues[id]
	if rec.version != version {
		return nil, ErrConflict
	}
	if err := checkExpected(rec.issue, update); err != nil {
		return nil, err
	}
	rec.issue.Apply(*update)
	rec.version++
	return rec.issue.Clone(), nil
}

func (s *MemoryStore) ListEscalationCandidates(ctx context.Context, cursor string, limit int) (*CandidatePage, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrUnavailable
	}
	var afterAt time.Time
	var afterID string
	if cursor != "" {
		var err error
		if afterAt, afterID, err = parseCreatedCursor(cursor); err != nil {
			return nil, err
		}
	}
	limit = pageSize(limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*db.Issue, 0, len(s.issues))
	for _, rec := range s.issues {
		issue := rec.issue
		if issue.EscalatedLevel >= db.MaxEscalationLevel || issue.IsClosed() {
			continue
		}
		if cursor != "" && !createdAfter(issue, afterAt, afterID) {
			continue
		}
		candidates = append(candidates, issue)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	page := &CandidatePage{IDs: []string{}}
	for _, issue := range candidates {
		if len(page.IDs) == limit {
			break
		}
		page.IDs = append(page.IDs, issue.ID)
	}
	if len(page.IDs) == limit && len(candidates) > limit {
		page.Next = createdCursor(candidates[limit-1])
	}
	return page, nil
}

// createdAfter orders issues by (CreatedAt, ID) the way Postgres compares row
// values
func createdAfter(issue *db.Issue, at time.Time, id string) bool {
	if issue.CreatedAt.Equal(at) {
		return issue.ID > id
	}
	return issue.CreatedAt.After(at)
}

// SetStatus mimics the resolution workflow writing a non-escalation field
func (s *MemoryStore) SetStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.issues[id]
	if !ok {
		return ErrNotFound
	}
	rec.issue.Status = status
	rec.version++
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
