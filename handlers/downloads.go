package handlers

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"sitesave/services"
	"sitesave/types"
	"sitesave/websocket"
)

// DownloadHandler handles download management endpoints
type DownloadHandler struct {
	registry services.JobRegistry
	pipeline *services.Pipeline
	hub      websocket.Hub
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(registry services.JobRegistry, pipeline *services.Pipeline, hub websocket.Hub) *DownloadHandler {
	return &DownloadHandler{
		registry: registry,
		pipeline: pipeline,
		hub:      hub,
	}
}

// StartDownload accepts a mirror request and starts the pipeline for it. The
// response never waits for the job; the caller polls the status endpoint.
func (h *DownloadHandler) StartDownload(c *gin.Context) {
	var req types.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
		})
		return
	}

	if req.Website == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Website URL is required",
		})
		return
	}
	if req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Token is required",
		})
		return
	}
	if parsed, err := url.Parse(req.Website); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Website must be an http or https URL",
		})
		return
	}

	if _, err := h.registry.Create(req.Token, req.Website); err != nil {
		if errors.Is(err, services.ErrDuplicateToken) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   "Token is already in use",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	h.pipeline.Start(req.Token, req.Website)

	c.JSON(http.StatusOK, types.DownloadResponse{
		Success: true,
		Token:   req.Token,
	})
}

// Status returns a snapshot of one job. The payload discriminates on the
// status field, not the HTTP code: terminal failures still answer 200.
func (h *DownloadHandler) Status(c *gin.Context) {
	token := c.Param("token")

	job, exists := h.registry.Get(token)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Download not found",
		})
		return
	}

	switch job.Status {
	case types.JobStatusCompleted:
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"status":      job.Status,
			"downloadUrl": job.DownloadURL,
			"filename":    job.Filename,
		})
	case types.JobStatusError:
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"status":  job.Status,
			"error":   job.Error,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"status":   job.Status,
			"progress": job.Progress,
		})
	}
}

// ListJobs returns all tracked jobs
func (h *DownloadHandler) ListJobs(c *gin.Context) {
	jobs := h.registry.All()
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// CancelJob terminates a running job's subprocess
func (h *DownloadHandler) CancelJob(c *gin.Context) {
	token := c.Param("token")

	if _, exists := h.registry.Get(token); !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Download not found",
		})
		return
	}

	if !h.pipeline.Cancel(token) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Job is not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Job cancelled",
	})
}

// HandleWebSocketConnection handles WebSocket connections for specific job progress
func (h *DownloadHandler) HandleWebSocketConnection(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Token is required"})
		return
	}

	if _, exists := h.registry.Get(token); !exists {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Download not found"})
		return
	}

	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, token)
	h.hub.RegisterClient(client)
	client.StartPumps()
}

// HandleWebSocketAllConnection handles WebSocket connections for all job progress
func (h *DownloadHandler) HandleWebSocketAllConnection(c *gin.Context) {
	upgrader := websocket.GetUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(h.hub, conn, "all")
	h.hub.RegisterClient(client)
	client.StartPumps()
}
