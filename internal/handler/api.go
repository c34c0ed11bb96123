package handler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"labeling-service/internal/assignment"
	"labeling-service/internal/labels"
	"labeling-service/internal/middleware"
	"labeling-service/internal/models"
	"labeling-service/internal/service"
	"labeling-service/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// instructions is the task briefing shown to annotators before labeling.
const instructions = `Your task in this project is to identify congressional bills that may have been relevant to nuclear weapons. The bill summaries each contain one or more elements, each of which relates to one or more provisions of the summarized bill. Bills count as "relevant to nuclear weapons" if they contain any elements that would be related to nuclear weapons, even if the bill also touches on lots of other subjects. To reiterate: if any element is relevant, count the whole bill as relevant.

Bill elements may be related to nuclear weapons for lots of different possible reasons. Examples include: research and development of nuclear weapons; manufacture of nuclear weapons; siting (e.g., at military bases) or platform for deployment (e.g., submarines); command and control; international agreements or limitations on their use (e.g., arms control agreements); responses to the actions of other countries; the United States's own nuclear posture (e.g., "no first use"); nuclear negotiations; nuclear triad; and many others.

As you consider the summary, think broadly and creatively and ask yourself: would making this bill provision the law of the land affect any policy pertaining to nuclear weapons? If so, it's probably relevant for our purposes.`

// Handler handles HTTP requests
type Handler struct {
	engine   *assignment.Engine
	sessions *session.Manager
	store    labels.Store
	auth     *service.AuthService
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(engine *assignment.Engine, sessions *session.Manager, store labels.Store, auth *service.AuthService, logger *zap.Logger) *Handler {
	return &Handler{
		engine:   engine,
		sessions: sessions,
		store:    store,
		auth:     auth,
		logger:   logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/v1/auth/login", h.Login)

	api := r.Group("/api/v1", middleware.AuthMiddleware(h.auth, h.logger))
	{
		api.GET("/instructions", h.Instructions)

		// Annotator flow
		api.POST("/sessions", h.StartSession)
		api.GET("/sessions/:id/current", h.CurrentBill)
		api.POST("/sessions/:id/submit", h.Submit)
		api.DELETE("/sessions/:id", h.EndSession)

		// Admin dashboard
		admin := api.Group("/admin", middleware.RequireAdmin())
		{
			admin.GET("/labels", h.GetAllLabels)
			admin.GET("/labels/stats", h.GetStats)
			admin.DELETE("/labels/:id", h.DeleteLabel)
			admin.GET("/export/csv", h.ExportCSV)
			admin.GET("/export/json", h.ExportJSON)
		}
	}

	// Health check
	r.GET("/health", h.HealthCheck)
}

// Login checks the shared passphrase and returns a session token.
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter the password to access the labeling app."})
		return
	}

	token, expiresAt, err := h.auth.Login(req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Password incorrect"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	})
}

// Instructions returns the annotator task briefing.
func (h *Handler) Instructions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"title":            "Nuclear Bill Labeling",
		"instructions":     instructions,
		"certainty_labels": models.CertaintyLabels,
	})
}

// StartSession opens a session for an annotator and assigns the first bill.
func (h *Handler) StartSession(c *gin.Context) {
	var req models.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter your User ID to begin."})
		return
	}

	userID := strings.TrimSpace(req.UserID)
	sess := h.sessions.Start(userID)

	bill, err := h.engine.Next(userID)
	if errors.Is(err, assignment.ErrPoolExhausted) {
		c.JSON(http.StatusOK, gin.H{
			"session_id": sess.ID,
			"user_id":    userID,
			"done":       true,
			"message":    "All summaries have been labeled by someone or by you!",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to assign bill", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Could not load bills: %v", err)})
		return
	}

	h.sessions.SetCurrent(sess.ID, bill)

	c.JSON(http.StatusCreated, gin.H{
		"session_id": sess.ID,
		"user_id":    userID,
		"bill":       billView(bill),
	})
}

// CurrentBill returns the bill currently assigned to the session.
func (h *Handler) CurrentBill(c *gin.Context) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	if sess.Current == nil {
		c.JSON(http.StatusOK, gin.H{
			"done":    true,
			"message": "All summaries have been labeled by someone or by you!",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bill": billView(sess.Current)})
}

// Submit commits the judgment for the session's current bill and advances
// the session to the next one. A submission that loses a race (bill filled
// up, or turned out to be already labeled by this annotator) is not an
// error: the judgment is discarded, a warning is returned and a fresh bill
// is assigned.
func (h *Handler) Submit(c *gin.Context) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	if sess.Current == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no bill is currently assigned to this session"})
		return
	}

	var req models.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	label, err := h.engine.Submit(sess.Current.ID, sess.UserID, *req.IsNuclear, req.Certainty, req.Notes)

	switch {
	case errors.Is(err, labels.ErrAlreadyAtCapacity):
		h.advance(c, sess, "This bill already has 2 completed labels. Loading next bill...")
		return
	case errors.Is(err, labels.ErrDuplicateAnnotator):
		h.advance(c, sess, "You already labeled this bill. Loading next bill...")
		return
	case err != nil:
		// Store failure: nothing was written. Surface the cause and let
		// the annotator resubmit; the current bill stays assigned.
		h.logger.Error("Failed to save label", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": fmt.Sprintf("Could not save response. Error: %v. Please try submitting again.", err),
		})
		return
	}

	next, err := h.engine.Next(sess.UserID)
	if errors.Is(err, assignment.ErrPoolExhausted) {
		h.sessions.SetCurrent(sess.ID, nil)
		c.JSON(http.StatusOK, gin.H{
			"saved":   true,
			"label":   label,
			"done":    true,
			"message": "All summaries have been labeled!",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to assign next bill", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Response saved, but could not load the next bill: %v", err)})
		return
	}

	h.sessions.SetCurrent(sess.ID, next)

	c.JSON(http.StatusOK, gin.H{
		"saved": true,
		"label": label,
		"bill":  billView(next),
	})
}

// advance silently re-draws after a lost submission race.
func (h *Handler) advance(c *gin.Context, sess *session.Session, warning string) {
	next, err := h.engine.Next(sess.UserID)
	if errors.Is(err, assignment.ErrPoolExhausted) {
		h.sessions.SetCurrent(sess.ID, nil)
		c.JSON(http.StatusOK, gin.H{
			"saved":   false,
			"warning": warning,
			"done":    true,
			"message": "All summaries have been labeled!",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to re-draw bill", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("Could not load next bill: %v", err)})
		return
	}

	h.sessions.SetCurrent(sess.ID, next)

	c.JSON(http.StatusOK, gin.H{
		"saved":   false,
		"warning": warning,
		"bill":    billView(next),
	})
}

// EndSession discards a session.
func (h *Handler) EndSession(c *gin.Context) {
	h.sessions.End(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// GetAllLabels returns all labels, newest first.
func (h *Handler) GetAllLabels(c *gin.Context) {
	all, err := h.store.All()
	if err != nil {
		h.logger.Error("Failed to get labels", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get labels"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"labels": all,
		"total":  len(all),
	})
}

// GetStats returns label statistics for the admin dashboard.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// DeleteLabel removes one label by its surrogate id.
func (h *Handler) DeleteLabel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid label id"})
		return
	}

	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, labels.ErrLabelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("ID %d not found", id)})
			return
		}
		h.logger.Error("Failed to delete label", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete label"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// ExportCSV exports labels to CSV
func (h *Handler) ExportCSV(c *gin.Context) {
	all, err := h.store.All()
	if err != nil {
		h.logger.Error("Failed to export CSV", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=labels.csv")

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"id", "legislation_display", "user_id", "timestamp", "is_nuclear", "certainty", "notes", "unique_number", "label_round"})

	// Write data
	for _, label := range all {
		isNuclear := "0"
		if label.IsNuclear {
			isNuclear = "1"
		}
		writer.Write([]string{
			strconv.FormatInt(label.ID, 10),
			label.LegislationDisplay,
			label.UserID,
			label.Timestamp.Format("2006-01-02 15:04:05"),
			isNuclear,
			strconv.Itoa(label.Certainty),
			label.Notes,
			label.UniqueNumber,
			strconv.Itoa(label.Round),
		})
	}
}

// ExportJSON exports labels to JSON
func (h *Handler) ExportJSON(c *gin.Context) {
	all, err := h.store.All()
	if err != nil {
		h.logger.Error("Failed to export JSON", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", "attachment; filename=labels.json")

	encoder := json.NewEncoder(c.Writer)
	encoder.SetIndent("", "  ")
	encoder.Encode(all)
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "labeling-service",
		"version": "1.0.0",
	})
}

// billView shapes a bill for the annotator screen.
func billView(b *models.Bill) gin.H {
	return gin.H{
		"id":                  b.ID,
		"legislation_display": b.LegislationDisplay(),
		"title":               b.Title,
		"summary_text":        b.SummaryText,
	}
}
