package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yashwanths814/vital-sub001/db"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapFirestoreError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "not found", err: status.Error(codes.NotFound, "no doc"), wantErr: ErrNotFound},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), wantErr: ErrUnavailable},
		{name: "deadline", err: status.Error(codes.DeadlineExceeded, "slow"), wantErr: ErrUnavailable},
		{name: "quota", err: status.Error(codes.ResourceExhausted, "quota"), wantErr: ErrUnavailable},
		{name: "aborted transaction", err: status.Error(codes.Aborted, "contention"), wantErr: ErrConflict},
		{name: "context timeout", err: context.DeadlineExceeded, wantErr: ErrUnavailable},
		{name: "conflict passes through", err: fmt.Errorf("tx: %w", ErrConflict), wantErr: ErrConflict},
		{name: "malformed passes through", err: db.ErrMalformedIssue, wantErr: db.ErrMalformedIssue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapFirestoreError("escalate", tt.err), tt.wantErr)
		})
	}

	other := errors.New("permission denied")
	err := mapFirestoreError("escalate", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestIsEscalationCandidate(t *testing.T) {
	reported := "2024-03-01T09:00:00Z"

	tests := []struct {
		name string
		data map[string]interface{}
		want bool
	}{
		{
			name: "no escalatedLevel field counts as PDO",
			data: map[string]interface{}{"createdAt": reported, "slaDays": int64(7), "status": db.IssueStatusPending},
			want: true,
		},
		{
			name: "no status field either",
			data: map[string]interface{}{"createdAt": reported},
			want: true,
		},
		{
			name: "with TDO",
			data: map[string]interface{}{"createdAt": reported, "escalatedLevel": int64(1), "status": db.IssueStatusEscalatedToTDO},
			want: true,
		},
		{
			name: "with DDO",
			data: map[string]interface{}{"createdAt": reported, "escalatedLevel": int64(2), "status": db.IssueStatusEscalatedToDDO},
			want: false,
		},
		{
			name: "resolved",
			data: map[string]interface{}{"createdAt": reported, "status": db.IssueStatusResolved},
			want: false,
		},
		{
			name: "malformed",
			data: map[string]interface{}{"status": db.IssueStatusPending},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isEscalationCandidate("issue-1", tt.data))
		})
	}
}

func TestFirestoreDocumentAlwaysCarriesLevel(t *testing.T) {
	issue := &db.Issue{ID: "issue-1", CreatedAt: created}
	doc := issue.ToDocument()

	assert.Contains(t, doc, db.FieldEscalatedLevel)
	assert.True(t, isEscalationCandidate(issue.ID, doc))
}
