package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/coah80/pastvoices/internal/util"
)

const stderrTailBytes = 500

// Error is a failed ffmpeg run. ExitCode is -1 when the process was killed
// by a signal or never started.
type Error struct {
	Started  bool
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	if !e.Started {
		return fmt.Sprintf("failed to start ffmpeg: %v", e.Err)
	}
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, e.Stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

func run(ctx context.Context, command commandFunc, bin string, args []string) error {
	cmd := command(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &Error{ExitCode: -1, Err: err}
	}
	if err := cmd.Wait(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &Error{Started: true, ExitCode: code, Stderr: util.StderrTail(stderr.Bytes(), stderrTailBytes), Err: err}
	}
	return nil
}
