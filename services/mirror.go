package services

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// MirrorOptions configures the external mirroring tool
type MirrorOptions struct {
	// Delay is an optional inter-request politeness throttle
	Delay time.Duration
}

// MirrorHandle exposes a running mirror process as a stream of output lines
// and a terminal exit status. Lines must be drained before Wait returns a
// useful result; slow consumers never stall the process itself.
type MirrorHandle interface {
	Lines() <-chan string
	Wait() error
}

// MirrorRunner launches the external mirroring tool for one website
type MirrorRunner interface {
	Start(ctx context.Context, website, destDir string, opts MirrorOptions) (MirrorHandle, error)
}

// wgetRunner drives wget. The flag set mirrors the site for offline viewing:
// recursive fetch within scope, link rewriting, extension adjustment, page
// requisites, never ascending above the requested path.
type wgetRunner struct {
	binary string
}

// NewWgetRunner creates a runner invoking the given wget binary
func NewWgetRunner(binary string) MirrorRunner {
	if binary == "" {
		binary = "wget"
	}
	return &wgetRunner{binary: binary}
}

func buildWgetArgs(website, destDir string, opts MirrorOptions) []string {
	args := []string{
		"--mirror",
		"--convert-links",
		"--adjust-extension",
		"--page-requisites",
		"--no-parent",
		"--directory-prefix", destDir,
	}
	if opts.Delay > 0 {
		args = append(args, "--wait", strconv.Itoa(int(opts.Delay.Seconds())))
	}
	return append(args, website)
}

// Start launches wget writing into destDir, creating it if absent. wget
// reports progress on stderr; each line is forwarded on the handle's channel.
func (w *wgetRunner) Start(ctx context.Context, website, destDir string, opts MirrorOptions) (MirrorHandle, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create mirror directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, w.binary, buildWgetArgs(website, destDir, opts)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", w.binary, err)
	}

	proc := &mirrorProcess{
		lines: make(chan string, 256),
		done:  make(chan error, 1),
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			// Never block on a slow consumer: the progress field is
			// overwrite-latest, so dropping a line loses nothing durable.
			select {
			case proc.lines <- line:
			default:
			}
		}
		close(proc.lines)
		proc.done <- cmd.Wait()
	}()

	return proc, nil
}

type mirrorProcess struct {
	lines chan string
	done  chan error
}

func (p *mirrorProcess) Lines() <-chan string { return p.lines }

func (p *mirrorProcess) Wait() error { return <-p.done }
