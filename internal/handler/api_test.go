package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"labeling-service/internal/assignment"
	"labeling-service/internal/dataset"
	"labeling-service/internal/labels"
	"labeling-service/internal/service"
	"labeling-service/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, billIDs ...string) (*gin.Engine, labels.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var sb strings.Builder
	sb.WriteString("unique_number,congress,legislation_number,title,Summary,formats\n")
	for _, id := range billIDs {
		fmt.Fprintf(&sb, "%s,118,H.R. %s,Title %s,Summary for %s,\n", id, id, id, id)
	}
	bills, err := dataset.Parse(strings.NewReader(sb.String()), dataset.KeyModeNatural)
	require.NoError(t, err)

	store, err := labels.NewSQLiteStore(filepath.Join(t.TempDir(), "labels.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for _, bill := range bills.Bills() {
		require.NoError(t, store.UpsertBill(bill))
	}

	logger := zap.NewNop()
	engine := assignment.NewEngine(bills, store, logger)
	auth := service.NewAuthService("labelers-pass", "admin-pass", "test-signing-key", time.Hour, logger)
	h := NewHandler(engine, session.NewManager(), store, auth, logger)

	router := gin.New()
	h.RegisterRoutes(router)

	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := map[string]interface{}{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w.Code, resp
}

func login(t *testing.T, router *gin.Engine, password string) string {
	t.Helper()

	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", gin.H{"password": password})
	require.Equal(t, http.StatusOK, code)
	token, _ := resp["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestLogin(t *testing.T) {
	router, _ := newTestRouter(t, "A")

	code, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", gin.H{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	login(t, router, "labelers-pass")
}

func TestRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t, "A")

	code, _ := doJSON(t, router, http.MethodPost, "/api/v1/sessions", "", gin.H{"user_id": "alice"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = doJSON(t, router, http.MethodGet, "/api/v1/instructions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestStartSessionRequiresUserID(t *testing.T) {
	router, _ := newTestRouter(t, "A")
	token := login(t, router, "labelers-pass")

	code, _ := doJSON(t, router, http.MethodPost, "/api/v1/sessions", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doJSON(t, router, http.MethodPost, "/api/v1/sessions", token, gin.H{"user_id": "   "})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLabelingFlow(t *testing.T) {
	router, _ := newTestRouter(t, "A", "B")
	token := login(t, router, "labelers-pass")

	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/sessions", token, gin.H{"user_id": "alice"})
	require.Equal(t, http.StatusCreated, code)
	sessionID, _ := resp["session_id"].(string)
	require.NotEmpty(t, sessionID)
	require.NotNil(t, resp["bill"])

	// Current mirrors what was assigned.
	code, current := doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sessionID+"/current", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, resp["bill"], current["bill"])

	// First submit saves round 1 and advances to the other bill.
	code, resp = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/submit", token,
		gin.H{"is_nuclear": true, "certainty": 4, "notes": "triad"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["saved"])
	label := resp["label"].(map[string]interface{})
	assert.Equal(t, float64(1), label["label_round"])
	require.NotNil(t, resp["bill"])

	// Second submit exhausts alice's pool: both bills now carry her label.
	code, resp = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/submit", token,
		gin.H{"is_nuclear": false, "certainty": 2})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["saved"])
	assert.Equal(t, true, resp["done"])
}

func TestSecondAnnotatorCompletesAndPoolCloses(t *testing.T) {
	router, _ := newTestRouter(t, "A")
	token := login(t, router, "labelers-pass")

	for _, user := range []string{"alice", "bob"} {
		code, resp := doJSON(t, router, http.MethodPost, "/api/v1/sessions", token, gin.H{"user_id": user})
		require.Equal(t, http.StatusCreated, code)
		sessionID := resp["session_id"].(string)

		code, resp = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/submit", token,
			gin.H{"is_nuclear": true, "certainty": 3})
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, resp["saved"])
		assert.Equal(t, true, resp["done"])
	}

	// A carries two labels now; carol has nothing to do.
	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/sessions", token, gin.H{"user_id": "carol"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, resp["done"])
}

func TestSubmitLostRaceRedraws(t *testing.T) {
	router, store := newTestRouter(t, "A", "B")
	token := login(t, router, "labelers-pass")

	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/sessions", token, gin.H{"user_id": "carol"})
	require.Equal(t, http.StatusCreated, code)
	sessionID := resp["session_id"].(string)
	assigned := resp["bill"].(map[string]interface{})["id"].(string)

	// Two other annotators fill the assigned bill while carol is reading it.
	engineFill(t, router, token, assigned, "alice")
	engineFill(t, router, token, assigned, "bob")

	code, resp = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/submit", token,
		gin.H{"is_nuclear": true, "certainty": 5})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, resp["saved"])
	assert.Contains(t, resp["warning"], "already has 2 completed labels")
	require.NotNil(t, resp["bill"])
	assert.NotEqual(t, assigned, resp["bill"].(map[string]interface{})["id"])

	count, err := store.CountFor(assigned)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// engineFill pushes one label for a specific bill through the API by
// starting sessions until the wanted bill is assigned.
func engineFill(t *testing.T, router *gin.Engine, token, billID, user string) {
	t.Helper()

	for i := 0; i < 50; i++ {
		code, resp := doJSON(t, router, http.MethodPost, "/api/v1/sessions", token, gin.H{"user_id": user})
		require.Equal(t, http.StatusCreated, code)
		sessionID := resp["session_id"].(string)
		got := resp["bill"].(map[string]interface{})["id"].(string)
		if got != billID {
			doJSON(t, router, http.MethodDelete, "/api/v1/sessions/"+sessionID, token, nil)
			continue
		}

		code, resp = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/submit", token,
			gin.H{"is_nuclear": false, "certainty": 1})
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, true, resp["saved"])
		return
	}
	t.Fatalf("never drew bill %s for %s", billID, user)
}

func TestAdminEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, "A")
	annotator := login(t, router, "labelers-pass")
	admin := login(t, router, "admin-pass")

	// Annotator tokens are locked out of the admin surface.
	code, _ := doJSON(t, router, http.MethodGet, "/api/v1/admin/labels", annotator, nil)
	assert.Equal(t, http.StatusForbidden, code)

	// Seed one label through the normal flow.
	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/sessions", annotator, gin.H{"user_id": "alice"})
	require.Equal(t, http.StatusCreated, code)
	sessionID := resp["session_id"].(string)
	code, _ = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/submit", annotator,
		gin.H{"is_nuclear": true, "certainty": 4})
	require.Equal(t, http.StatusOK, code)

	code, resp = doJSON(t, router, http.MethodGet, "/api/v1/admin/labels", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp["total"])

	code, resp = doJSON(t, router, http.MethodGet, "/api/v1/admin/labels/stats", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), resp["total"])
	assert.Equal(t, float64(1), resp["round_1"])

	// Delete the row and confirm the not-found path.
	code, resp = doJSON(t, router, http.MethodDelete, "/api/v1/admin/labels/1", admin, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, router, http.MethodDelete, "/api/v1/admin/labels/1", admin, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doJSON(t, router, http.MethodDelete, "/api/v1/admin/labels/zero", admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t, "A")

	code, resp := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp["status"])
}
