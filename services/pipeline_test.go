package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitesave/types"
)

type fakeHandle struct {
	lines chan string
	done  chan error
}

func (f *fakeHandle) Lines() <-chan string { return f.lines }
func (f *fakeHandle) Wait() error          { return <-f.done }

// fakeRunner plays back canned output lines instead of spawning wget
type fakeRunner struct {
	lines            []string
	exitErr          error
	startErr         error
	blockUntilCancel bool
}

func (f *fakeRunner) Start(ctx context.Context, website, destDir string, opts MirrorOptions) (MirrorHandle, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}

	h := &fakeHandle{
		lines: make(chan string, len(f.lines)+1),
		done:  make(chan error, 1),
	}
	go func() {
		for _, line := range f.lines {
			h.lines <- line
		}
		if f.blockUntilCancel {
			<-ctx.Done()
			close(h.lines)
			h.done <- errors.New("signal: killed")
			return
		}
		close(h.lines)
		h.done <- f.exitErr
	}()
	return h, nil
}

// fakeArchiver records builds and writes a stub archive file
type fakeArchiver struct {
	err error

	mu     sync.Mutex
	builds []string
}

func (f *fakeArchiver) Build(sourceDir, archivePath string) error {
	f.mu.Lock()
	f.builds = append(f.builds, archivePath)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(archivePath, []byte("stub"), 0o644)
}

// recordingRegistry captures the progress value after every committed update
type recordingRegistry struct {
	JobRegistry

	mu       sync.Mutex
	progress []string
}

func (r *recordingRegistry) Update(token string, mutate func(*types.DownloadJob)) (*types.DownloadJob, error) {
	snapshot, err := r.JobRegistry.Update(token, mutate)
	if err == nil {
		r.mu.Lock()
		r.progress = append(r.progress, snapshot.Progress)
		r.mu.Unlock()
	}
	return snapshot, err
}

func (r *recordingRegistry) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.progress...)
}

func waitForTerminal(t *testing.T, registry JobRegistry, token string) *types.DownloadJob {
	t.Helper()
	var job *types.DownloadJob
	require.Eventually(t, func() bool {
		got, exists := registry.Get(token)
		if !exists || !got.Terminal() {
			return false
		}
		job = got
		return true
	}, 5*time.Second, 10*time.Millisecond, "job never reached a terminal state")
	return job
}

func TestPipelineSuccess(t *testing.T) {
	registry := &recordingRegistry{JobRegistry: NewJobRegistry()}
	runner := &fakeRunner{lines: []string{
		"Resolving example.com... 93.184.216.34",
		"Saving to: 'example.com/index.html'",
	}}
	archiver := &fakeArchiver{}
	pipeline := NewPipeline(registry, runner, archiver, nil, t.TempDir(), MirrorOptions{}, time.Minute)

	_, err := registry.Create("job-1", "http://example.com")
	require.NoError(t, err)
	pipeline.Start("job-1", "http://example.com")

	job := waitForTerminal(t, registry, "job-1")
	assert.Equal(t, types.JobStatusCompleted, job.Status)
	assert.Equal(t, "job-1.zip", job.Filename)
	assert.Equal(t, "/api/download-file/job-1.zip", job.DownloadURL)
	assert.Equal(t, "Completed", job.Progress)
	assert.Empty(t, job.Error)
	assert.NotNil(t, job.CompletedAt)

	// Archive built at the token-derived path, never parsed from output.
	require.Len(t, archiver.builds, 1)
	assert.Equal(t, pipeline.ArchivePath("job-1.zip"), archiver.builds[0])

	// Updates arrive in emission order, converting strictly before terminal.
	seen := registry.seen()
	require.GreaterOrEqual(t, len(seen), 4)
	assert.Equal(t, "Resolving example.com... 93.184.216.34", seen[0])
	assert.Equal(t, "Saving to: 'example.com/index.html'", seen[1])
	assert.Equal(t, convertingMessage, seen[len(seen)-2])
	assert.Equal(t, "Completed", seen[len(seen)-1])
}

func TestPipelineStatusIsStableAfterCompletion(t *testing.T) {
	registry := NewJobRegistry()
	pipeline := NewPipeline(registry, &fakeRunner{}, &fakeArchiver{}, nil, t.TempDir(), MirrorOptions{}, time.Minute)

	_, err := registry.Create("job-1", "http://example.com")
	require.NoError(t, err)
	pipeline.Start("job-1", "http://example.com")

	first := waitForTerminal(t, registry, "job-1")
	for i := 0; i < 5; i++ {
		again, exists := registry.Get("job-1")
		require.True(t, exists)
		assert.Equal(t, first.Filename, again.Filename)
		assert.Equal(t, first.DownloadURL, again.DownloadURL)
	}
}

func TestPipelineSpawnFailure(t *testing.T) {
	registry := NewJobRegistry()
	runner := &fakeRunner{startErr: errors.New(`exec: "wget": executable file not found in $PATH`)}
	pipeline := NewPipeline(registry, runner, &fakeArchiver{}, nil, t.TempDir(), MirrorOptions{}, time.Minute)

	_, err := registry.Create("job-1", "http://example.com")
	require.NoError(t, err)
	pipeline.Start("job-1", "http://example.com")

	job := waitForTerminal(t, registry, "job-1")
	assert.Equal(t, types.JobStatusError, job.Status)
	assert.Contains(t, job.Error, "executable file not found")
	assert.Empty(t, job.Filename)
}

func TestPipelineNonZeroExit(t *testing.T) {
	registry := NewJobRegistry()
	runner := &fakeRunner{
		lines:   []string{"failed: Name or service not known."},
		exitErr: errors.New("exit status 4"),
	}
	archiver := &fakeArchiver{}
	pipeline := NewPipeline(registry, runner, archiver, nil, t.TempDir(), MirrorOptions{}, time.Minute)

	_, err := registry.Create("job-1", "http://unreachable.invalid")
	require.NoError(t, err)
	pipeline.Start("job-1", "http://unreachable.invalid")

	job := waitForTerminal(t, registry, "job-1")
	assert.Equal(t, types.JobStatusError, job.Status)
	assert.Equal(t, "exit status 4", job.Error)
	assert.Empty(t, archiver.builds, "no archive may be built after a mirror failure")
}

func TestPipelineArchiveFailure(t *testing.T) {
	registry := NewJobRegistry()
	archiver := &fakeArchiver{err: errors.New("zip: disk full")}
	pipeline := NewPipeline(registry, &fakeRunner{}, archiver, nil, t.TempDir(), MirrorOptions{}, time.Minute)

	_, err := registry.Create("job-1", "http://example.com")
	require.NoError(t, err)
	pipeline.Start("job-1", "http://example.com")

	job := waitForTerminal(t, registry, "job-1")
	assert.Equal(t, types.JobStatusError, job.Status)
	assert.Equal(t, "zip: disk full", job.Error)
	assert.Empty(t, job.Filename, "a failed job must not reference a partial archive")
}

func TestPipelineCancel(t *testing.T) {
	registry := NewJobRegistry()
	runner := &fakeRunner{blockUntilCancel: true}
	pipeline := NewPipeline(registry, runner, &fakeArchiver{}, nil, t.TempDir(), MirrorOptions{}, time.Minute)

	_, err := registry.Create("job-1", "http://example.com")
	require.NoError(t, err)
	pipeline.Start("job-1", "http://example.com")

	require.True(t, pipeline.Cancel("job-1"))

	job := waitForTerminal(t, registry, "job-1")
	assert.Equal(t, types.JobStatusError, job.Status)
	assert.Equal(t, "cancelled", job.Error)
}

func TestPipelineCancelUnknownToken(t *testing.T) {
	pipeline := NewPipeline(NewJobRegistry(), &fakeRunner{}, &fakeArchiver{}, nil, t.TempDir(), MirrorOptions{}, time.Minute)
	assert.False(t, pipeline.Cancel("missing"))
}

func TestPipelineTimeout(t *testing.T) {
	registry := NewJobRegistry()
	runner := &fakeRunner{blockUntilCancel: true}
	pipeline := NewPipeline(registry, runner, &fakeArchiver{}, nil, t.TempDir(), MirrorOptions{}, 50*time.Millisecond)

	_, err := registry.Create("job-1", "http://example.com")
	require.NoError(t, err)
	pipeline.Start("job-1", "http://example.com")

	job := waitForTerminal(t, registry, "job-1")
	assert.Equal(t, types.JobStatusError, job.Status)
	assert.Equal(t, "mirror timed out", job.Error)
}
