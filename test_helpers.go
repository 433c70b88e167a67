package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"sitesave/handlers"
	"sitesave/services"
	"sitesave/types"
	"sitesave/websocket"
)

// stubRunner stands in for wget: it writes a tiny mirrored tree into the
// scratch dir and plays back canned progress lines.
type stubRunner struct {
	lines     []string
	lineDelay time.Duration
	exitErr   error
	skipFiles bool
}

type stubHandle struct {
	lines chan string
	done  chan error
}

func (h *stubHandle) Lines() <-chan string { return h.lines }
func (h *stubHandle) Wait() error          { return <-h.done }

func (s *stubRunner) Start(ctx context.Context, website, destDir string, opts services.MirrorOptions) (services.MirrorHandle, error) {
	if !s.skipFiles {
		pageDir := filepath.Join(destDir, "example.com")
		if err := os.MkdirAll(pageDir, 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(pageDir, "index.html"), []byte("<html>mirrored</html>"), 0o644); err != nil {
			return nil, err
		}
	}

	h := &stubHandle{
		lines: make(chan string, len(s.lines)+1),
		done:  make(chan error, 1),
	}
	go func() {
		for _, line := range s.lines {
			if s.lineDelay > 0 {
				select {
				case <-ctx.Done():
					close(h.lines)
					h.done <- ctx.Err()
					return
				case <-time.After(s.lineDelay):
				}
			}
			select {
			case h.lines <- line:
			default:
			}
		}
		close(h.lines)
		h.done <- s.exitErr
	}()
	return h, nil
}

// TestHelper provides utilities for testing the sitesave server
type TestHelper struct {
	Server   *httptest.Server
	SitesDir string
	Registry services.JobRegistry
	Pipeline *services.Pipeline
	Router   *gin.Engine
}

// NewTestHelper creates a helper whose runner mirrors successfully
func NewTestHelper(t *testing.T) *TestHelper {
	return NewTestHelperWithRunner(t, &stubRunner{
		lines: []string{
			"Resolving example.com... 93.184.216.34",
			"Saving to: 'example.com/index.html'",
		},
	})
}

// NewTestHelperWithRunner creates a helper around a custom runner
func NewTestHelperWithRunner(t *testing.T, runner services.MirrorRunner) *TestHelper {
	gin.SetMode(gin.TestMode)

	sitesDir := t.TempDir()

	hub := websocket.NewHub()
	go hub.Run()

	registry := services.NewJobRegistry()
	pipeline := services.NewPipeline(registry, runner, services.NewZipArchiver(), hub,
		sitesDir, services.MirrorOptions{}, time.Minute)

	downloadHandler := handlers.NewDownloadHandler(registry, pipeline, hub)
	fileHandler := handlers.NewFileHandler(sitesDir)
	healthHandler := handlers.NewHealthHandler()
	settingsHandler := handlers.NewSettingsHandler()

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler.HealthCheck)
	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/download", downloadHandler.StartDownload)
		apiGroup.GET("/status/:token", downloadHandler.Status)
		apiGroup.GET("/downloads", downloadHandler.ListJobs)
		apiGroup.DELETE("/downloads/:token", downloadHandler.CancelJob)
		apiGroup.GET("/download-file/:filename", fileHandler.DownloadFile)
		apiGroup.GET("/ws/downloads/:token", downloadHandler.HandleWebSocketConnection)
		apiGroup.GET("/ws/downloads", downloadHandler.HandleWebSocketAllConnection)
		apiGroup.GET("/settings", settingsHandler.GetSettings)
		apiGroup.POST("/settings", settingsHandler.UpdateSettings)
	}

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestHelper{
		Server:   server,
		SitesDir: sitesDir,
		Registry: registry,
		Pipeline: pipeline,
		Router:   router,
	}
}

// GetJSON performs a GET request and decodes the JSON response
func (h *TestHelper) GetJSON(t *testing.T, path string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(h.Server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// PostJSON performs a POST request with a JSON body and decodes the response
func (h *TestHelper) PostJSON(t *testing.T, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(h.Server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// Delete performs a DELETE request and decodes the JSON response
func (h *TestHelper) Delete(t *testing.T, path string, out interface{}) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, h.Server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// StartDownload submits a download request and asserts it was accepted
func (h *TestHelper) StartDownload(t *testing.T, token, website string) {
	t.Helper()
	var resp types.DownloadResponse
	httpResp := h.PostJSON(t, "/api/download", types.DownloadRequest{Website: website, Token: token}, &resp)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.True(t, resp.Success)
	require.Equal(t, token, resp.Token)
}

// WaitForTerminal polls the registry until the job leaves processing
func (h *TestHelper) WaitForTerminal(t *testing.T, token string) *types.DownloadJob {
	t.Helper()
	var job *types.DownloadJob
	require.Eventually(t, func() bool {
		got, exists := h.Registry.Get(token)
		if !exists || !got.Terminal() {
			return false
		}
		job = got
		return true
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached a terminal state", token)
	return job
}
