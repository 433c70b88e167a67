package main

import (
	"net/http"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitesave/types"
)

func wsURL(serverURL, path string) string {
	return strings.Replace(serverURL, "http://", "ws://", 1) + path
}

func slowRunner() *stubRunner {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "fetching assets..."
	}
	return &stubRunner{lines: lines, lineDelay: 20 * time.Millisecond}
}

// TestWebSocketJobProgress tests receiving progress frames for one job
func TestWebSocketJobProgress(t *testing.T) {
	helper := NewTestHelperWithRunner(t, slowRunner())

	helper.StartDownload(t, "ws-token", "http://example.com")

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(helper.Server.URL, "/api/ws/downloads/ws-token"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg types.ProgressMessage
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "ws-token", msg.Token)
	assert.Contains(t, []string{"progress", "status", "complete", "error"}, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())
}

// TestWebSocketAllJobs tests the firehose endpoint carrying every job's updates
func TestWebSocketAllJobs(t *testing.T) {
	helper := NewTestHelperWithRunner(t, slowRunner())

	conn, _, err := gorilla.DefaultDialer.Dial(wsURL(helper.Server.URL, "/api/ws/downloads"), nil)
	require.NoError(t, err)
	defer conn.Close()

	helper.StartDownload(t, "ws-all-token", "http://example.com")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg types.ProgressMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "ws-all-token", msg.Token)
}

// TestWebSocketUnknownJob tests that the per-job endpoint rejects unknown tokens
func TestWebSocketUnknownJob(t *testing.T) {
	helper := NewTestHelper(t)

	_, resp, err := gorilla.DefaultDialer.Dial(wsURL(helper.Server.URL, "/api/ws/downloads/never-submitted"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
