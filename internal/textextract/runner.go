package textextract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Command is one external tool invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin []byte
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes external tools; tests swap in a stub.
type Runner interface {
	Run(ctx context.Context, c Command) ([]byte, error)
}

type execRunner struct {
	logger *slog.Logger
}

// Run returns stdout. A failing command's error carries the tail of stderr.
func (r execRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		r.logger.Debug("textextract.exec.failed", "cmd", c.String(), "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		if tail := lastLine(stderr.String()); tail != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.Name, err, tail)
		}
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}
	r.logger.Debug("textextract.exec.ok", "cmd", c.Name, "elapsed_ms", time.Since(start).Milliseconds(), "stdout_bytes", stdout.Len())
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
