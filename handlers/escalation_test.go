package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashwanths814/vital-sub001/db"
	"github.com/yashwanths814/vital-sub001/services"
	"github.com/yashwanths814/vital-sub001/store"
)

const testSecret = "test-secret"

var reportedAt = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type unavailableStore struct {
	*store.MemoryStore
}

func (unavailableStore) Escalate(ctx context.Context, id string, decide store.DecideFunc) (*db.Issue, error) {
	return nil, store.ErrUnavailable
}

func setupEscalationRouter(t *testing.T, issueStore store.IssueStore, daysSinceReport int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := services.NewEscalationEngine(issueStore, nil, services.EscalationConfig{})
	now := reportedAt.Add(db.DaysToDuration(daysSinceReport))
	engine.SetClock(func() time.Time { return now })

	h := NewEscalationHandler(engine)
	auth := NewAuthMiddleware(testSecret)

	r := gin.New()
	r.POST("/evaluate-auto-escalation", auth.OptionalAuth(), h.EvaluateAutoEscalation)
	r.POST("/request-manual-escalation", auth.RequireAuth(), h.RequestManualEscalation)
	r.GET("/issues/:id/escalation", h.GetEscalation)
	return r
}

func seedMemoryStore(t *testing.T, issues ...*db.Issue) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for _, issue := range issues {
		if issue.CreatedAt.IsZero() {
			issue.CreatedAt = reportedAt
		}
		_, err := s.Create(context.Background(), issue)
		require.NoError(t, err)
	}
	return s
}

func signToken(t *testing.T, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := Claims{
		Role: "villager",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doJSON(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestEscalationHandler_EvaluateAutoEscalation(t *testing.T) {
	tests := []struct {
		name          string
		days          int
		issue         *db.Issue
		body          interface{}
		wantStatus    int
		wantEscalated bool
		wantOutcome   string
	}{
		{
			name:          "escalates once the SLA has passed",
			days:          7,
			issue:         &db.Issue{ID: "issue-1", SLADays: 7},
			body:          gin.H{"issueId": "issue-1"},
			wantStatus:    http.StatusOK,
			wantEscalated: true,
			wantOutcome:   db.OutcomeEscalated,
		},
		{
			name:          "not yet eligible is a normal response",
			days:          6,
			issue:         &db.Issue{ID: "issue-1", SLADays: 7},
			body:          gin.H{"issueId": "issue-1"},
			wantStatus:    http.StatusOK,
			wantEscalated: false,
			wantOutcome:   db.OutcomeNotYetEligible,
		},
		{
			name:          "resolved issues are left alone",
			days:          30,
			issue:         &db.Issue{ID: "issue-1", SLADays: 7, Status: db.IssueStatusResolved},
			body:          gin.H{"issueId": "issue-1"},
			wantStatus:    http.StatusOK,
			wantEscalated: false,
			wantOutcome:   db.OutcomeIssueClosed,
		},
		{
			name:       "unknown issue",
			days:       7,
			issue:      &db.Issue{ID: "issue-1"},
			body:       gin.H{"issueId": "issue-404"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "missing issue id",
			days:       7,
			issue:      &db.Issue{ID: "issue-1"},
			body:       gin.H{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupEscalationRouter(t, seedMemoryStore(t, tt.issue), tt.days)

			w := doJSON(r, http.MethodPost, "/evaluate-auto-escalation", tt.body, "")
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			body := decodeBody(t, w)
			assert.Equal(t, tt.wantEscalated, body["escalated"])
			assert.Equal(t, tt.wantOutcome, body["outcome"])
			if tt.wantEscalated {
				assert.Equal(t, float64(db.LevelTDO), body["newLevel"])
			} else {
				assert.NotContains(t, body, "newLevel")
			}
		})
	}
}

func TestEscalationHandler_RequestManualEscalation(t *testing.T) {
	s := seedMemoryStore(t, &db.Issue{ID: "issue-2", SLADays: 30})
	r := setupEscalationRouter(t, s, 5)
	token := signToken(t, "villager-7", time.Hour)

	w := doJSON(r, http.MethodPost, "/request-manual-escalation", gin.H{"issueId": "issue-2", "reason": "Water still contaminated"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["escalated"])
	assert.Equal(t, "Water still contaminated", body["reason"])

	issue, err := s.Get(context.Background(), "issue-2")
	require.NoError(t, err)
	require.Len(t, issue.Escalation.History, 1)
	assert.Equal(t, "villager-7", issue.Escalation.History[0].RequestedBy)

	// second request: already used
	w = doJSON(r, http.MethodPost, "/request-manual-escalation", gin.H{"issueId": "issue-2"}, token)
	assert.Equal(t, http.StatusConflict, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, false, body["escalated"])
	assert.Equal(t, db.OutcomeAlreadyUsed, body["code"])
}

func TestEscalationHandler_RequestManualEscalation_NotYetEligible(t *testing.T) {
	r := setupEscalationRouter(t, seedMemoryStore(t, &db.Issue{ID: "issue-3"}), 3)

	w := doJSON(r, http.MethodPost, "/request-manual-escalation", gin.H{"issueId": "issue-3"}, signToken(t, "villager-1", time.Hour))
	assert.Equal(t, http.StatusConflict, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, db.OutcomeNotYetEligible, body["code"])
	assert.Equal(t, float64(1), body["remainingDays"])
	assert.Equal(t, "Manual escalation to TDO available in 1 day(s)", body["message"])
	assert.Contains(t, body, "nextEligibleAt")
}

func TestEscalationHandler_RequestManualEscalation_Auth(t *testing.T) {
	r := setupEscalationRouter(t, seedMemoryStore(t, &db.Issue{ID: "issue-4"}), 5)

	tests := []struct {
		name  string
		token string
	}{
		{name: "no token", token: ""},
		{name: "expired token", token: signToken(t, "villager-1", -time.Hour)},
		{name: "garbage token", token: "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/request-manual-escalation", gin.H{"issueId": "issue-4"}, tt.token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestEscalationHandler_StoreUnavailable(t *testing.T) {
	s := unavailableStore{MemoryStore: seedMemoryStore(t, &db.Issue{ID: "issue-5"})}
	r := setupEscalationRouter(t, s, 10)

	w := doJSON(r, http.MethodPost, "/evaluate-auto-escalation", gin.H{"issueId": "issue-5"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestEscalationHandler_GetEscalation(t *testing.T) {
	r := setupEscalationRouter(t, seedMemoryStore(t, &db.Issue{ID: "issue-6", Category: "roads"}), 2)

	w := doJSON(r, http.MethodGet, "/issues/issue-6/escalation", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(15), body["slaDays"])
	assert.Equal(t, float64(db.LevelPDO), body["escalatedLevel"])

	current, ok := body["currentAuthority"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, db.RolePDO, current["role"])

	w = doJSON(r, http.MethodGet, "/issues/missing/escalation", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
