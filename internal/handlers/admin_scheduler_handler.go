package handlers

import (
	"errors"
	"net/http"

	"sendcash-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminSchedulerHandler manual tick and scheduler stats
type AdminSchedulerHandler struct {
	scheduler *services.SchedulerService
	log       *logrus.Logger
}

// NewAdminSchedulerHandler creates a new AdminSchedulerHandler
func NewAdminSchedulerHandler(scheduler *services.SchedulerService, log *logrus.Logger) *AdminSchedulerHandler {
	return &AdminSchedulerHandler{scheduler: scheduler, log: log}
}

// RunRemindersHandler POST /api/admin/reminders/run
func (h *AdminSchedulerHandler) RunRemindersHandler(c *gin.Context) {
	result, err := h.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrTickInProgress) {
			respondWithError(c, http.StatusConflict, "tick_in_progress", "A scheduler tick is already running", nil)
			return
		}
		respondWithServiceError(c, h.log, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"admin":  c.GetString("admin_username"),
		"sent":   result.Sent,
		"failed": result.Failed,
	}).Info("manual scheduler tick")
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// SchedulerStatsHandler GET /api/admin/scheduler/stats
func (h *AdminSchedulerHandler) SchedulerStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Stats())
}
