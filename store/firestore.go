package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yashwanths814/vital-sub001/db"
)

const DefaultIssuesCollection = "issues"

// FirestoreStore keeps each issue as a document. Escalations run inside a
// Firestore transaction, which retries on contention up to maxAttempts and
// re-runs decide against the fresh document every time.
type FirestoreStore struct {
	client      *firestore.Client
	collection  string
	maxAttempts int
}

// NewFirestoreClient initializes the Firebase app and returns its Firestore
// client. credentialsFile may be empty to use application default credentials.
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firestore client: %w", err)
	}

	log.Printf("Firestore Store: connected (project: %s)", projectID)
	return client, nil
}

func NewFirestoreStore(client *firestore.Client, collection string, maxAttempts int) *FirestoreStore {
	if collection == "" {
		collection = DefaultIssuesCollection
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &FirestoreStore{
		client:      client,
		collection:  collection,
		maxAttempts: maxAttempts,
	}
}

func (s *FirestoreStore) doc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*db.Issue, error) {
	snap, err := s.doc(id).Get(ctx)
	if err != nil {
		return nil, mapFirestoreError("failed to get issue", err)
	}
	return db.IssueFromDocument(snap.Ref.ID, snap.Data())
}

func (s *FirestoreStore) Create(ctx context.Context, issue *db.Issue) (*db.Issue, error) {
	created := issue.Clone()
	if created.Status == "" {
		created.Status = db.IssueStatusPending
	}
	if err := created.Validate(); err != nil {
		return nil, err
	}
	created.UpdatedAt = created.CreatedAt

	var ref *firestore.DocumentRef
	if created.ID == "" {
		ref = s.client.Collection(s.collection).NewDoc()
		created.ID = ref.ID
	} else {
		ref = s.doc(created.ID)
	}

	if _, err := ref.Create(ctx, created.ToDocument()); err != nil {
		return nil, mapFirestoreError("failed to create issue", err)
	}
	return created, nil
}

func (s *FirestoreStore) Escalate(ctx context.Context, id string, decide DecideFunc) (*db.Issue, error) {
	ref := s.doc(id)
	var result *db.Issue

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		issue, err := db.IssueFromDocument(id, snap.Data())
		if err != nil {
			return err
		}

		update, err := decide(issue.Clone())
		if err != nil {
			return err
		}
		if update == nil {
			result = issue
			return nil
		}
		if err := checkExpected(issue, update); err != nil {
			return err
		}

		updates := []firestore.Update{
			{Path: db.FieldEscalatedLevel, Value: update.NewLevel},
			{Path: db.FieldStatus, Value: update.NewStatus},
			{Path: db.FieldEscalationHistory, Value: firestore.ArrayUnion(update.Entry.ToMap())},
			{Path: db.FieldUpdatedAt, Value: update.Entry.At},
		}
		if update.SetManualUsed {
			updates = append(updates, firestore.Update{Path: db.FieldManualEscalationUsed, Value: true})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}

		issue.Apply(*update)
		result = issue
		return nil
	}, firestore.MaxAttempts(s.maxAttempts))
	if err != nil {
		return nil, mapFirestoreError("failed to escalate issue", err)
	}
	return result, nil
}

// ListEscalationCandidates scans the collection in document ID order and
// keeps open issues below the top level. The level is checked after decoding
// because documents written without escalatedLevel are at level 0, and
// Firestore range filters never match a missing field. The cursor is the
// last scanned document ID.
func (s *FirestoreStore) ListEscalationCandidates(ctx context.Context, cursor string, limit int) (*CandidatePage, error) {
	limit = pageSize(limit)
	query := s.client.Collection(s.collection).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(limit)
	if cursor != "" {
		query = query.StartAfter(cursor)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	page := &CandidatePage{IDs: []string{}}
	scanned := 0
	last := ""
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapFirestoreError("failed to list escalation candidates", err)
		}
		scanned++
		last = snap.Ref.ID
		if isEscalationCandidate(snap.Ref.ID, snap.Data()) {
			page.IDs = append(page.IDs, snap.Ref.ID)
		}
	}
	if scanned == limit {
		page.Next = last
	}
	return page, nil
}

// isEscalationCandidate decodes a stored document and reports whether the
// sweep should evaluate it. Malformed documents are logged and left out.
func isEscalationCandidate(id string, data map[string]interface{}) bool {
	issue, err := db.IssueFromDocument(id, data)
	if err != nil {
		log.Printf("WARNING: Skipping malformed issue %s in sweep: %v", id, err)
		return false
	}
	return issue.EscalatedLevel < db.MaxEscalationLevel && !issue.IsClosed()
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// mapFirestoreError translates gRPC status codes into store errors. Errors
// that already belong to the store or the db package pass through untouched.
func mapFirestoreError(msg string, err error) error {
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidUpdate) ||
		errors.Is(err, db.ErrMalformedIssue) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", msg, ErrUnavailable, err)
	}

	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Canceled:
		return fmt.Errorf("%s: %w: %v", msg, ErrUnavailable, err)
	case codes.Aborted:
		return fmt.Errorf("%s: %w: %v", msg, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
