// Package sandbox implements the code-execution port as a local
// subprocess interpreter. Each run gets a fresh working directory so
// artifacts from earlier runs never leak into later ones.
package sandbox

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/swarmlabs/hive/internal/ports"
)

// CommandRunner abstracts subprocess execution so tests can substitute
// a fake. Stdout and stderr are returned separately; err is non-nil on
// a non-zero exit.
type CommandRunner interface {
	Run(ctx context.Context, workDir string, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

// NewRunner creates a new ExecRunner.
func NewRunner() *ExecRunner { return &ExecRunner{} }

// ProcessSandbox runs code through a configured interpreter command in
// an isolated temp directory.
type ProcessSandbox struct {
	command []string
	timeout time.Duration
	baseDir string
	runner  CommandRunner

	warmOnce sync.Once
}

// Config contains configuration for creating a ProcessSandbox.
type Config struct {
	// Command is the interpreter argv, e.g. ["python3", "-u"]. The
	// script path is appended.
	Command []string
	// Timeout bounds each run.
	Timeout time.Duration
	// WorkDir is the parent for per-run directories. Empty uses the
	// system temp dir.
	WorkDir string
	// Runner overrides subprocess execution, for tests.
	Runner CommandRunner
}

// New creates a process sandbox.
func New(cfg Config) *ProcessSandbox {
	command := cfg.Command
	if len(command) == 0 {
		command = []string{"python3", "-u"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runner := cfg.Runner
	if runner == nil {
		runner = NewRunner()
	}
	return &ProcessSandbox{
		command: command,
		timeout: timeout,
		baseDir: cfg.WorkDir,
		runner:  runner,
	}
}

// imageExts maps harvested file extensions to mime types.
var imageExts = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
}

// Run executes code in a fresh directory and harvests any image files
// it produced. A non-zero exit is reported through Succeeded and
// Stderr, not as an error; errors are reserved for sandbox-level
// failures like an unwritable work directory.
func (s *ProcessSandbox) Run(ctx context.Context, code string) (*ports.ExecutionOutput, error) {
	dir, err := os.MkdirTemp(s.baseDir, "hive-run-*")
	if err != nil {
		return nil, &ports.Error{Op: "sandbox.run", Err: fmt.Errorf("create work dir: %w", err)}
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "main.py")
	if err := os.WriteFile(script, []byte(code), 0644); err != nil {
		return nil, &ports.Error{Op: "sandbox.run", Err: fmt.Errorf("write script: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := append(append([]string{}, s.command[1:]...), script)
	stdout, stderr, runErr := s.runner.Run(ctx, dir, s.command[0], args...)

	out := &ports.ExecutionOutput{
		Stdout:    string(stdout),
		Stderr:    string(stderr),
		Succeeded: runErr == nil,
		Images:    harvestImages(dir),
	}
	if ctx.Err() != nil {
		out.Succeeded = false
		if out.Stderr == "" {
			out.Stderr = "execution timed out"
		}
	}
	return out, nil
}

// WarmUp primes the interpreter once by running a trivial script.
// Best effort; failures are logged and ignored.
func (s *ProcessSandbox) WarmUp(ctx context.Context) {
	s.warmOnce.Do(func() {
		start := time.Now()
		if _, err := s.Run(ctx, "pass\n"); err != nil {
			log.Printf("[sandbox] warm-up failed: %v", err)
			return
		}
		log.Printf("[sandbox] warmed up in %v", time.Since(start).Round(time.Millisecond))
	})
}

// harvestImages collects image files written into the run directory.
func harvestImages(dir string) []ports.ExecutionImage {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var images []ports.ExecutionImage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		mime, ok := imageExts[strings.ToLower(filepath.Ext(e.Name()))]
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Printf("[sandbox] read image %s: %v", e.Name(), err)
			continue
		}
		images = append(images, ports.ExecutionImage{
			Filename: e.Name(),
			MimeType: mime,
			Data:     data,
		})
	}
	return images
}

// Verify implementations at compile time.
var (
	_ ports.Sandbox = (*ProcessSandbox)(nil)
	_ CommandRunner = (*ExecRunner)(nil)
)
