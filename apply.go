package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// sqlScript is one unit handed to an applier: a rendered artifact or a hook
// file after placeholder expansion.
type sqlScript struct {
	Name string
	SQL  string
	// Path, when set, is a file holding exactly SQL.
	Path string
}

// ScriptApplier executes SQL scripts against the target, stopping at the
// first failing statement.
type ScriptApplier interface {
	Apply(ctx context.Context, s sqlScript) error
}

// psqlApplier runs scripts through the psql client.
type psqlApplier struct {
	path string
	dsn  string
	log  *zap.Logger
}

func (a *psqlApplier) Apply(ctx context.Context, s sqlScript) error {
	path := s.Path
	if path == "" {
		f, err := os.CreateTemp("", "dumpferry-*.sql")
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		defer os.Remove(f.Name())
		if _, err := f.WriteString(s.SQL); err != nil {
			f.Close()
			return fmt.Errorf("%s: write script: %w", s.Name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("%s: write script: %w", s.Name, err)
		}
		path = f.Name()
	}

	args, env, err := psqlInvocation(a.dsn, path)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, a.path, args...)
	cmd.Env = append(os.Environ(), env...)
	out, runErr := cmd.CombinedOutput()

	lines := psqlOutputLines(string(out))
	for _, l := range lines {
		a.log.Info("psql", zap.String("script", s.Name), zap.String("output", l))
	}
	if runErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &ExternalToolError{Tool: "psql", Stage: s.Name, ExitCode: code, Output: strings.Join(lines, "\n"), Err: runErr}
	}
	return nil
}

// psqlInvocation builds psql arguments for one script file. A password in a
// URL-form DSN moves to PGPASSWORD so it stays out of the process list.
func psqlInvocation(dsn, file string) (args []string, env []string, err error) {
	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return nil, nil, fmt.Errorf("parse target dsn: %w", err)
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("parse target dsn: %w", err)
		}
		if pw, ok := u.User.Password(); ok {
			env = append(env, "PGPASSWORD="+pw)
			u.User = url.User(u.User.Username())
			dsn = u.String()
		}
	}
	args = []string{
		"--dbname=" + dsn,
		"--quiet",
		"--no-psqlrc",
		"--set=ON_ERROR_STOP=1",
		"--file=" + file,
	}
	return args, env, nil
}

// psqlOutputLines drops blank lines and server NOTICE chatter.
func psqlOutputLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" || strings.Contains(l, "NOTICE:") {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

type schemaExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// directApplier executes scripts statement by statement over a pgx connection.
type directApplier struct {
	exec schemaExecutor
	log  *zap.Logger
}

func (a *directApplier) Apply(ctx context.Context, s sqlScript) error {
	text := s.SQL
	if text == "" && s.Path != "" {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		text = string(data)
	}
	stmts := splitStatements(text)
	a.log.Debug("applying script", zap.String("script", s.Name), zap.Int("statements", len(stmts)))
	for i, stmt := range stmts {
		if _, err := a.exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: statement %d: %w\nSQL: %s", s.Name, i+1, err, stmt)
		}
	}
	return nil
}

// connectApplyTarget opens the single connection the direct applier uses.
// Statements are sent with the simple protocol so multi-statement hook
// bodies and utility commands behave as they would under psql.
func connectApplyTarget(ctx context.Context, dsn string) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse target dsn: %w", err)
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, &ConnectivityError{Stage: "apply", Target: "postgres", Err: err}
	}
	return conn, nil
}
