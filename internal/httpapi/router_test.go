package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/quillforge/engine/internal/config"
	"github.com/quillforge/engine/internal/job"
	"github.com/quillforge/engine/internal/logger"
)

const testSecret = "test-secret"

type noopQueue struct{}

func (noopQueue) Enqueue(ctx context.Context, jobID string) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *job.Repo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&job.Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	repo := job.NewRepo(db)
	manager := job.NewManager(repo, noopQueue{}, nil, logger.NewNop(), 5, 24*time.Hour)
	return NewRouter(manager, config.Config{JWTSecret: testSecret}, logger.NewNop()), repo
}

func bearerToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + s
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, path, auth string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope (%d): %v: %s", w.Code, err, w.Body.String())
	}
	return w.Code, env
}

func TestJobs_RequiresAuth(t *testing.T) {
	r, _ := newTestRouter(t)

	status, env := do(t, r, http.MethodPost, "/jobs", "", gin.H{"type": "deep_research", "params": gin.H{"query": "x"}})
	if status != http.StatusUnauthorized || env.Code != 40101 {
		t.Fatalf("expected 401/40101, got %d/%d", status, env.Code)
	}

	status, _ = do(t, r, http.MethodGet, "/jobs/someid", "Bearer garbage", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", status)
	}
}

func TestJobs_SubmitPollCancelFlow(t *testing.T) {
	r, _ := newTestRouter(t)
	auth := bearerToken(t, "user-1")

	status, env := do(t, r, http.MethodPost, "/jobs", auth, gin.H{
		"type":   "generate_outline_document",
		"params": gin.H{"query": "photosynthesis", "contentKind": "article"},
	})
	if status != http.StatusOK || env.Code != 0 {
		t.Fatalf("submit: %d/%d %s", status, env.Code, env.Message)
	}
	var submitted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &submitted); err != nil {
		t.Fatalf("decode submit data: %v", err)
	}
	if submitted.JobID == "" || submitted.Status != "queued" {
		t.Fatalf("unexpected submit data: %+v", submitted)
	}

	status, env = do(t, r, http.MethodGet, "/jobs/"+submitted.JobID, auth, nil)
	if status != http.StatusOK {
		t.Fatalf("poll: %d %s", status, env.Message)
	}
	var view map[string]any
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view["status"] != "queued" {
		t.Fatalf("expected queued, got %v", view["status"])
	}
	if _, ok := view["readySections"]; !ok {
		t.Fatalf("readySections missing from status view")
	}

	status, _ = do(t, r, http.MethodDelete, "/jobs/"+submitted.JobID, auth, nil)
	if status != http.StatusOK {
		t.Fatalf("cancel: %d", status)
	}

	// Second cancel hits a terminal job.
	status, env = do(t, r, http.MethodDelete, "/jobs/"+submitted.JobID, auth, nil)
	if status != http.StatusConflict || env.Code != 40901 {
		t.Fatalf("expected 409/40901, got %d/%d", status, env.Code)
	}

	status, env = do(t, r, http.MethodGet, "/jobs/"+job.NewID(), auth, nil)
	if status != http.StatusNotFound || env.Code != 40401 {
		t.Fatalf("expected 404/40401, got %d/%d", status, env.Code)
	}
}

func TestJobs_SubmitValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	auth := bearerToken(t, "user-1")

	status, env := do(t, r, http.MethodPost, "/jobs", auth, gin.H{
		"type":   "generate_outline_document",
		"params": gin.H{"query": "x", "contentKind": "sonnet-collection"},
	})
	if status != http.StatusBadRequest || env.Code != 10002 {
		t.Fatalf("expected 400/10002, got %d/%d", status, env.Code)
	}

	status, env = do(t, r, http.MethodPost, "/jobs", auth, gin.H{
		"type":   "mystery",
		"params": gin.H{"query": "x"},
	})
	if status != http.StatusBadRequest || env.Code != 10002 {
		t.Fatalf("unknown type: expected 400/10002, got %d/%d", status, env.Code)
	}
}

func TestJobs_CapacityLimit(t *testing.T) {
	r, _ := newTestRouter(t)
	auth := bearerToken(t, "user-1")

	body := gin.H{"type": "deep_research", "params": gin.H{"query": "topic"}}
	for i := 0; i < 5; i++ {
		if status, env := do(t, r, http.MethodPost, "/jobs", auth, body); status != http.StatusOK {
			t.Fatalf("submit %d: %d %s", i, status, env.Message)
		}
	}

	status, env := do(t, r, http.MethodPost, "/jobs", auth, body)
	if status != http.StatusTooManyRequests || env.Code != 42901 {
		t.Fatalf("expected 429/42901, got %d/%d", status, env.Code)
	}

	// A different owner is unaffected.
	if status, _ := do(t, r, http.MethodPost, "/jobs", bearerToken(t, "user-2"), body); status != http.StatusOK {
		t.Fatalf("second owner blocked: %d", status)
	}
}

func TestJobs_ListReturnsOwnJobsOnly(t *testing.T) {
	r, _ := newTestRouter(t)
	auth1 := bearerToken(t, "user-1")
	auth2 := bearerToken(t, "user-2")

	body := gin.H{"type": "deep_research", "params": gin.H{"query": "topic"}}
	for i := 0; i < 2; i++ {
		if status, _ := do(t, r, http.MethodPost, "/jobs", auth1, body); status != http.StatusOK {
			t.Fatalf("submit: %d", status)
		}
	}
	if status, _ := do(t, r, http.MethodPost, "/jobs", auth2, body); status != http.StatusOK {
		t.Fatalf("submit: %d", status)
	}

	status, env := do(t, r, http.MethodGet, "/jobs", auth1, nil)
	if status != http.StatusOK {
		t.Fatalf("list: %d", status)
	}
	var data struct {
		Jobs []map[string]any `json:"jobs"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(data.Jobs) != 2 {
		t.Fatalf("expected 2 jobs for user-1, got %d", len(data.Jobs))
	}
}
