package cmd

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"sitesave/config"
	"sitesave/handlers"
	"sitesave/middleware"
	"sitesave/services"
	"sitesave/types"
	"sitesave/websocket"
)

// StartWebServer starts the web server
func StartWebServer(port int) {
	// Set production mode if not specified
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	sitesDir := config.GetSitesLocation()
	if err := os.MkdirAll(sitesDir, 0o755); err != nil {
		log.Fatalf("Cannot create sites location %s: %v", sitesDir, err)
	}

	// Initialize services
	hub := websocket.NewHub()
	go hub.Run()

	registry := services.NewJobRegistry()
	runner := services.NewWgetRunner(config.GetWgetPath())
	archiver := services.NewZipArchiver()
	pipeline := services.NewPipeline(registry, runner, archiver, hub, sitesDir,
		services.MirrorOptions{Delay: config.GetRequestDelay()}, config.GetPipelineTimeout())

	// Expired records take their archives and leftover scratch dirs with them.
	registry.StartSweeper(context.Background(), config.GetJobTTL(), func(job types.DownloadJob) {
		if job.Filename != "" {
			os.Remove(pipeline.ArchivePath(job.Filename))
		}
		os.RemoveAll(pipeline.ScratchDir(job.Token))
		log.Printf("Job %s evicted after TTL", job.Token)
	})

	// Initialize handlers
	downloadHandler := handlers.NewDownloadHandler(registry, pipeline, hub)
	fileHandler := handlers.NewFileHandler(sitesDir)
	healthHandler := handlers.NewHealthHandler()
	settingsHandler := handlers.NewSettingsHandler()

	// Setup router
	r := gin.Default()

	// Apply middleware
	r.Use(middleware.CORS())
	r.Use(middleware.Logging())

	// Setup routes
	setupRoutes(r, downloadHandler, fileHandler, healthHandler, settingsHandler)

	// Start server
	portStr := strconv.Itoa(port)
	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		portStr = serverPort
	}

	log.Printf("Sitesave web server starting on port %s", portStr)
	log.Printf("Sites location: %s", sitesDir)
	if err := r.Run(":" + portStr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, downloadHandler *handlers.DownloadHandler, fileHandler *handlers.FileHandler, healthHandler *handlers.HealthHandler, settingsHandler *handlers.SettingsHandler) {
	// Health check endpoint
	r.GET("/health", healthHandler.HealthCheck)

	// API routes group
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		// Download lifecycle endpoints
		apiGroup.POST("/download", downloadHandler.StartDownload)
		apiGroup.GET("/status/:token", downloadHandler.Status)
		apiGroup.GET("/downloads", downloadHandler.ListJobs)
		apiGroup.DELETE("/downloads/:token", downloadHandler.CancelJob)

		// Archive retrieval
		apiGroup.GET("/download-file/:filename", fileHandler.DownloadFile)

		// WebSocket endpoints for real-time progress
		wsGroup := apiGroup.Group("/ws")
		{
			// WebSocket endpoint for specific job progress
			wsGroup.GET("/downloads/:token", downloadHandler.HandleWebSocketConnection)

			// WebSocket endpoint for all downloads progress
			wsGroup.GET("/downloads", downloadHandler.HandleWebSocketAllConnection)
		}

		// Settings endpoints
		apiGroup.GET("/settings", settingsHandler.GetSettings)
		apiGroup.POST("/settings", settingsHandler.UpdateSettings)
	}
}
