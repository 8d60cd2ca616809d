package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Dumper produces a structure-only dump of the source, one line at a time.
type Dumper interface {
	Dump(ctx context.Context, emit func(line string) error) error
}

// maxDumpLine bounds a single dump line; long COMMENT and ENUM lists
// can exceed bufio's default token size.
const maxDumpLine = 16 << 20

// mysqldumpRunner runs the mysqldump binary against the source DSN.
type mysqldumpRunner struct {
	path   string
	dsn    string
	tables []string
}

func (d *mysqldumpRunner) Dump(ctx context.Context, emit func(line string) error) error {
	args, env, err := mysqldumpInvocation(d.dsn, d.tables)
	if err != nil {
		return err
	}
	return runLineTool(ctx, "mysqldump", "dump", d.path, args, env, emit)
}

// runLineTool runs an external command and feeds every stdout line to emit.
// If emit fails the command is killed and emit's error returned.
func runLineTool(ctx context.Context, tool, stage, path string, args, env []string, emit func(string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = append(os.Environ(), env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	if err := cmd.Start(); err != nil {
		return &ExternalToolError{Tool: tool, Stage: stage, ExitCode: -1, Err: err}
	}

	emitErr := feedLines(stdout, emit)
	if emitErr != nil {
		cancel()
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if emitErr != nil {
		return emitErr
	}
	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &ExternalToolError{Tool: tool, Stage: stage, ExitCode: code, Output: stderr.String(), Err: waitErr}
	}
	return nil
}

// feedLines passes each line of r to emit, without its line ending.
func feedLines(r io.Reader, emit func(string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxDumpLine)
	for scanner.Scan() {
		if err := emit(strings.TrimRight(scanner.Text(), "\r")); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// translateFromDumper feeds a dump through a fresh translator.
func translateFromDumper(ctx context.Context, d Dumper, opts TranslateOptions) (*Translation, error) {
	tr := NewTranslator(opts)
	if err := d.Dump(ctx, tr.Feed); err != nil {
		return nil, err
	}
	return tr.Finish()
}
