package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// CommandResult is the outcome of an external command that started.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes external tools. Implementations return an error only when
// the command could not be started; a non-zero exit is reported in the
// result.
type Runner interface {
	Run(ctx context.Context, name string, args []string, quiet bool) (CommandResult, error)
}

// ExecRunner runs commands with os/exec. Unless quiet, output streams to
// Stdout and Stderr as well as being captured.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args []string, quiet bool) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	if quiet {
		cmd.Stdout = &stdoutBuf
		cmd.Stderr = &stderrBuf
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = io.MultiWriter(r.Stdout, &stdoutBuf)
		cmd.Stderr = io.MultiWriter(r.Stderr, &stderrBuf)
	}
	log.Debug().Str("cmd", name+" "+strings.Join(args, " ")).Msg("Executing")
	err := cmd.Run()
	res := CommandResult{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run %s: %w", name, err)
	}
	return res, nil
}
