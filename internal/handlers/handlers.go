package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"support-triage-go/internal/metrics"
	"support-triage-go/internal/model"
	"support-triage-go/internal/scheduler"
	"support-triage-go/internal/store"
)

const defaultFetchLimit = 200

// Handlers contains all HTTP handlers
type Handlers struct {
	store     store.EmailStore
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
}

// NewHandlers creates new HTTP handlers
func NewHandlers(st store.EmailStore, sched *scheduler.Scheduler, m *metrics.Metrics) *Handlers {
	return &Handlers{
		store:     st,
		scheduler: sched,
		metrics:   m,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		api.GET("/emails", h.GetEmails)
		api.GET("/dashboard", h.GetDashboard)
		api.PATCH("/emails/:message_id/resolve", h.ResolveEmail)
		api.PATCH("/emails/:message_id/reopen", h.ReopenEmail)

		api.POST("/ingest/run", h.RunIngestion)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := model.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Metrics:   make(map[string]string),
	}

	if err := h.store.Ping(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler != nil && h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		response.Metrics["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// GetEmails returns stored email records, urgent-first by default
func (h *Handlers) GetEmails(c *gin.Context) {
	orderByPriority := c.DefaultQuery("order_by_priority", "true") == "true"
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultFetchLimit)))
	if err != nil || limit < 1 {
		limit = defaultFetchLimit
	}

	records, err := h.store.Fetch(c.Request.Context(), orderByPriority, limit)
	if err != nil {
		logrus.Errorf("Failed to fetch emails: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch emails",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"emails": records,
		"count":  len(records),
	})
}

// GetDashboard returns email records together with derived statistics
func (h *Handlers) GetDashboard(c *gin.Context) {
	records, err := h.store.Fetch(c.Request.Context(), true, defaultFetchLimit)
	if err != nil {
		logrus.Errorf("Failed to fetch emails: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch emails",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	stats := model.ComputeStats(records, time.Now().UTC())
	h.metrics.StoredEmails.Set(float64(stats.Total))

	c.JSON(http.StatusOK, gin.H{
		"emails": records,
		"stats":  stats,
	})
}

// ResolveEmail marks a record as resolved
func (h *Handlers) ResolveEmail(c *gin.Context) {
	h.updateStatus(c, model.StatusResolved)
}

// ReopenEmail marks a record as pending again
func (h *Handlers) ReopenEmail(c *gin.Context) {
	h.updateStatus(c, model.StatusPending)
}

func (h *Handlers) updateStatus(c *gin.Context, status string) {
	messageID := c.Param("message_id")

	if err := h.store.UpdateStatus(c.Request.Context(), messageID, status); err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, model.ErrorResponse{
				Error:   "not_found",
				Message: "Email not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		logrus.Errorf("Failed to update status for %s: %v", messageID, err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update email status",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message_id": messageID,
		"status":     status,
	})
}

// RunIngestion triggers one synchronous fetch-and-ingest cycle
func (h *Handlers) RunIngestion(c *gin.Context) {
	if err := h.scheduler.RunOnce(c.Request.Context()); err != nil {
		logrus.Errorf("Manual ingestion failed: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "ingestion_error",
			Message: "Failed to run ingestion",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Ingestion completed successfully",
	})
}

// StartScheduler starts the periodic ingestion scheduler
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to start scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler started successfully",
		"status":  "running",
	})
}

// StopScheduler stops the periodic ingestion scheduler
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to stop scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler stopped successfully",
		"status":  "stopped",
	})
}

// GetSchedulerStatus returns the current scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	status := "stopped"
	if h.scheduler.IsRunning() {
		status = "running"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"next_run": h.scheduler.GetNextRun(),
		"last_run": h.scheduler.GetLastRun(),
	})
}
