package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/hub"
)

func newTestEngine() (*gin.Engine, *hub.Hub) {
	gin.SetMode(gin.TestMode)
	h := hub.New(time.Minute)
	return NewHandler(h).NewEngine(), h
}

func TestHealthEndpoint(t *testing.T) {
	engine, _ := newTestEngine()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetDocumentStateReturnsEmptyDocument(t *testing.T) {
	engine, _ := newTestEngine()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/state", nil)
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["document_id"] != "doc-1" {
		t.Fatalf("unexpected document_id: %v", body["document_id"])
	}
}

func TestGetActiveUsersReflectsJoinedSessions(t *testing.T) {
	engine, h := newTestEngine()
	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc-1/users", nil)
	engine.ServeHTTP(rec, req)

	var body struct {
		ActiveUsers []map[string]interface{} `json:"active_users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.ActiveUsers) != 1 {
		t.Fatalf("expected 1 active user, got %d", len(body.ActiveUsers))
	}
}
