package services

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sitesave/types"
	"sitesave/websocket"
)

const convertingMessage = "Converting to ZIP..."

// Pipeline drives one mirror job from creation to its terminal state. Each
// job owns its scratch directory and archive path, both derived from the
// token, so concurrent jobs never touch each other's files.
type Pipeline struct {
	registry JobRegistry
	runner   MirrorRunner
	archiver Archiver
	hub      websocket.Hub
	sitesDir string
	opts     MirrorOptions
	timeout  time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewPipeline creates a pipeline writing mirrors and archives under sitesDir.
// hub may be nil when no live progress feed is wanted.
func NewPipeline(registry JobRegistry, runner MirrorRunner, archiver Archiver, hub websocket.Hub, sitesDir string, opts MirrorOptions, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Pipeline{
		registry: registry,
		runner:   runner,
		archiver: archiver,
		hub:      hub,
		sitesDir: sitesDir,
		opts:     opts,
		timeout:  timeout,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start runs the job asynchronously. The registry record for token must
// already exist; Start returns immediately.
func (p *Pipeline) Start(token, website string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)

	p.mu.Lock()
	p.cancels[token] = cancel
	p.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			p.mu.Lock()
			delete(p.cancels, token)
			p.mu.Unlock()
		}()
		p.run(ctx, token, website)
	}()
}

// Cancel terminates a running job's subprocess. It reports whether a running
// job was found; the job itself finalizes to the error state.
func (p *Pipeline) Cancel(token string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[token]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// ArchivePath returns where the archive for a filename lives on disk
func (p *Pipeline) ArchivePath(filename string) string {
	return filepath.Join(p.sitesDir, filename)
}

// ScratchDir returns the mirror scratch directory for a token
func (p *Pipeline) ScratchDir(token string) string {
	return filepath.Join(p.sitesDir, token)
}

// run executes the state machine: processing(mirroring) ->
// processing(converting) -> completed, or -> error at any point. Exactly one
// terminal transition happens, so no job is left processing forever.
func (p *Pipeline) run(ctx context.Context, token, website string) {
	scratch := p.ScratchDir(token)

	handle, err := p.runner.Start(ctx, website, scratch, p.opts)
	if err != nil {
		p.fail(token, err.Error())
		return
	}

	for line := range handle.Lines() {
		p.setProgress(token, line)
	}

	if err := handle.Wait(); err != nil {
		p.fail(token, mirrorFailure(ctx, err))
		return
	}

	p.setProgress(token, convertingMessage)

	filename := token + ".zip"
	archivePath := p.ArchivePath(filename)
	if err := p.archiver.Build(scratch, archivePath); err != nil {
		os.Remove(archivePath)
		p.fail(token, err.Error())
		return
	}

	// The archive supersedes the mirrored tree; reclaim the scratch space.
	if err := os.RemoveAll(scratch); err != nil {
		log.Printf("Job %s: could not remove scratch dir: %v", token, err)
	}

	now := time.Now()
	_, err = p.registry.Update(token, func(job *types.DownloadJob) {
		job.Status = types.JobStatusCompleted
		job.Progress = "Completed"
		job.Filename = filename
		job.DownloadURL = "/api/download-file/" + filename
		job.CompletedAt = &now
	})
	if err != nil {
		log.Printf("Job %s: finalize failed: %v", token, err)
		return
	}

	if p.hub != nil {
		p.hub.BroadcastProgress(token, "complete", string(types.JobStatusCompleted), "Completed", website+" download completed")
	}
	log.Printf("Job %s completed successfully", token)
}

// mirrorFailure maps a subprocess failure to the recorded message,
// distinguishing caller cancellation and the pipeline timeout from real
// subprocess errors.
func mirrorFailure(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return "cancelled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "mirror timed out"
	default:
		return err.Error()
	}
}

func (p *Pipeline) setProgress(token, line string) {
	if _, err := p.registry.Update(token, func(job *types.DownloadJob) {
		job.Progress = line
	}); err != nil {
		return
	}
	if p.hub != nil {
		p.hub.BroadcastProgress(token, "progress", string(types.JobStatusProcessing), line, "")
	}
}

func (p *Pipeline) fail(token, message string) {
	now := time.Now()
	if _, err := p.registry.Update(token, func(job *types.DownloadJob) {
		job.Status = types.JobStatusError
		job.Error = message
		job.CompletedAt = &now
	}); err != nil {
		log.Printf("Job %s: record error state failed: %v", token, err)
		return
	}
	if p.hub != nil {
		p.hub.BroadcastProgress(token, "error", string(types.JobStatusError), "", message)
	}
	log.Printf("Job %s failed: %s", token, message)
}
