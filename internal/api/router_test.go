package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/engine"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := engine.DefaultConfig()
	cfg.FeedbackRetry = common.RetryOptions{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	e, err := engine.New(db.Storage, cfg)
	require.NoError(t, err)
	return NewRouter(RouterConfig{Engine: e}), db
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestSuggestCategories(t *testing.T) {
	r, db := newTestRouter(t)
	db.SeedTransactions(
		testutil.Txn("h1", "Shell", "Fuel", 2),
		testutil.Txn("h2", "Shell", "Fuel", 3),
		testutil.Txn("target", "SHELL", "", 0),
	)

	w := do(t, r, http.MethodGet, "/api/transactions/target/suggestions", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		Candidates []model.Candidate `json:"candidates"`
	}](t, w)
	require.Len(t, body.Candidates, 1)
	assert.Equal(t, "Fuel", body.Candidates[0].Category)

	w = do(t, r, http.MethodGet, "/api/transactions/missing/suggestions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decode[ErrorEnvelope](t, w)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestRuleRoutes(t *testing.T) {
	r, db := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/rules", map[string]any{
		"enabled": true,
		"when":    map[string]any{"merchant_like": "Shell"},
		"then":    map[string]any{"category": "Fuel"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Rule model.Rule `json:"rule"`
	}](t, w).Rule
	assert.Equal(t, "Shell -> Fuel", created.Name)

	path := fmt.Sprintf("/api/rules/%d", created.ID)
	w = do(t, r, http.MethodPatch, path, map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, db.MustFeedback("shell", "Fuel").RejectCount)

	w = do(t, r, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Rules []model.Rule `json:"rules"`
	}](t, w)
	require.Len(t, list.Rules, 1)
	assert.False(t, list.Rules[0].Enabled)

	w = do(t, r, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 4, db.MustFeedback("shell", "Fuel").RejectCount)

	w = do(t, r, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleRoutes_Errors(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "invalid rule",
			method: http.MethodPost,
			path:   "/api/rules",
			body:   map[string]any{"then": map[string]any{"category": "Fuel"}},
			status: http.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name:   "bad id",
			method: http.MethodGet,
			path:   "/api/rules/abc",
			status: http.StatusBadRequest,
			code:   "invalid_id",
		},
		{
			name:   "bad month",
			method: http.MethodPost,
			path:   "/api/rules/test",
			body:   map[string]any{"month": "May", "rule": map[string]any{"when": map[string]any{"merchant_like": "x"}, "then": map[string]any{"category": "Fuel"}}},
			status: http.StatusBadRequest,
			code:   "invalid_month",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorEnvelope](t, w).Error.Code)
		})
	}
}

func TestTestRuleRoute(t *testing.T) {
	r, db := newTestRouter(t)
	db.SeedTransactions(
		testutil.Txn("a", "Shell", "", 1),
		testutil.Txn("b", "Texaco", "", 1),
	)

	w := do(t, r, http.MethodPost, "/api/rules/test", map[string]any{
		"rule": map[string]any{"when": map[string]any{"merchant_like": "shell"}, "then": map[string]any{"category": "Fuel"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		Matched int `json:"matched"`
		Scanned int `json:"scanned"`
	}](t, w)
	assert.Equal(t, 1, body.Matched)
	assert.Equal(t, 2, body.Scanned)
}

func TestSuggestionRoutes(t *testing.T) {
	r, db := newTestRouter(t)
	for i := 0; i < 4; i++ {
		db.SeedTransactions(testutil.Txn(fmt.Sprintf("d%d", i), "STARBUCKS", "Dining", i+1))
	}

	w := do(t, r, http.MethodPost, "/api/suggestions/mine", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	mined := decode[struct {
		Created []model.RuleSuggestion `json:"created"`
	}](t, w)
	require.Len(t, mined.Created, 1)
	id := mined.Created[0].ID

	w = do(t, r, http.MethodGet, "/api/suggestions?status=new", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Suggestions []model.RuleSuggestion `json:"suggestions"`
	}](t, w).Suggestions, 1)

	accept := fmt.Sprintf("/api/suggestions/%d/accept", id)
	w = do(t, r, http.MethodPost, accept, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, accept, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_resolved", decode[ErrorEnvelope](t, w).Error.Code)

	w = do(t, r, http.MethodGet, "/api/suggestions?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/suggestions/mine", map[string]any{"window_days": 0, "min_count": 1, "min_share": 0.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIgnoreRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/suggestions/ignores", map[string]any{"merchant": "Starbucks", "category": "Dining"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/suggestions/ignores", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ignores := decode[struct {
		Ignores []model.SuggestionIgnore `json:"ignores"`
	}](t, w).Ignores
	require.Len(t, ignores, 1)
	assert.Equal(t, "starbucks", ignores[0].Merchant)

	w = do(t, r, http.MethodDelete, "/api/suggestions/ignores?merchant=Starbucks&category=Dining", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodPost, "/api/suggestions/ignores", map[string]any{"merchant": "Starbucks"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedbackRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/feedback", map[string]any{
		"merchant": "Shell", "category": "Fuel", "action": "accept", "weight": 2,
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/feedback?merchant=SHELL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[struct {
		Stats []model.FeedbackStat `json:"stats"`
	}](t, w).Stats
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].AcceptCount)

	w = do(t, r, http.MethodPost, "/api/feedback", map[string]any{"merchant": "Shell", "category": "Fuel", "action": "shrug"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/feedback", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCategorizeRoute(t *testing.T) {
	r, db := newTestRouter(t)
	db.SeedTransactions(testutil.Txn("t1", "Shell", "Groceries", 1))

	w := do(t, r, http.MethodPost, "/api/transactions/t1/category", map[string]any{"category": "Fuel"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, db.MustFeedback("shell", "Fuel").AcceptCount)
	assert.Equal(t, 1, db.MustFeedback("shell", "Groceries").RejectCount)

	w = do(t, r, http.MethodPost, "/api/transactions/t1/category", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransactionRoutes(t *testing.T) {
	r, db := newTestRouter(t)
	db.SeedTransactions(
		testutil.Txn("t1", "Shell", "Fuel", 3),
		testutil.Txn("t2", "Shell", "", 2),
		testutil.Txn("t3", "Costco", "", 1),
	)

	type listBody struct {
		Transactions []model.Transaction `json:"transactions"`
	}

	w := do(t, r, http.MethodGet, "/api/transactions?uncategorized=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[listBody](t, w).Transactions, 2)

	w = do(t, r, http.MethodGet, "/api/transactions?merchant=SHELL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[listBody](t, w).Transactions, 2)

	w = do(t, r, http.MethodGet, "/api/transactions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodDelete, "/api/transactions/t3", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodDelete, "/api/transactions/t3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[listBody](t, w).Transactions, 2)
}
