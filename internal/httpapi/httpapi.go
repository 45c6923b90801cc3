// Package httpapi serves the health endpoint plus a small read-only
// surface over the hub (A3 in SPEC_FULL.md), using gin the way the
// teacher's internal/api/handlers.go does.
//
// Document CRUD, comments, and permissions from the teacher's handlers
// are out of scope per spec §1's "OUT OF SCOPE" list and are not carried
// over; only the two hub read-throughs named in spec §4.6 (GetDocumentState,
// GetActiveUsers) get REST endpoints here.
package httpapi

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/hub"
)

// Handler holds the dependencies for the HTTP surface.
type Handler struct {
	Hub *hub.Hub
}

// NewHandler builds a Handler over h.
func NewHandler(h *hub.Hub) *Handler {
	return &Handler{Hub: h}
}

// NewEngine builds a gin.Engine with CORS and every route registered,
// matching the teacher's cmd/api/main.go CORS configuration.
func (h *Handler) NewEngine() *gin.Engine {
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the health endpoint, stats, and the
// read-through document endpoints.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.Health)
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)

	docs := r.Group("/api/documents")
	{
		docs.GET("/:id/state", h.GetDocumentState)
		docs.GET("/:id/users", h.GetActiveUsers)
	}
}

// Health replies with a short plain-text status string, per spec §6.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Stats reports coarse hub occupancy, for operational visibility.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"document_count": h.Hub.Registry.Count(),
		"session_count":  h.Hub.Sessions.Count(),
	})
}

// GetDocumentState is the REST read-through for hub.Hub.GetDocumentState.
func (h *Handler) GetDocumentState(c *gin.Context) {
	documentID := c.Param("id")
	state := h.Hub.GetDocumentState(documentID)

	sessions := make([]gin.H, 0, len(state.Sessions))
	for _, s := range state.Sessions {
		sessions = append(sessions, gin.H{
			"client_id":  s.ClientID,
			"user_id":    s.UserID,
			"user_name":  s.UserName,
			"user_color": s.UserColor,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"document_id":   documentID,
		"state_vector":  base64.StdEncoding.EncodeToString(state.StateVector),
		"document_data": base64.StdEncoding.EncodeToString(state.FullDocument),
		"active_users":  sessions,
	})
}

// GetActiveUsers is the REST read-through for hub.Hub.GetActiveUsers.
func (h *Handler) GetActiveUsers(c *gin.Context) {
	documentID := c.Param("id")
	sessions := h.Hub.GetActiveUsers(documentID)

	users := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		users = append(users, gin.H{
			"client_id":  s.ClientID,
			"user_id":    s.UserID,
			"user_name":  s.UserName,
			"user_color": s.UserColor,
		})
	}
	c.JSON(http.StatusOK, gin.H{"document_id": documentID, "active_users": users})
}
