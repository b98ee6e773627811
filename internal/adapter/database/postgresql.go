package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/semmidev/obx/internal/config"
	"github.com/semmidev/obx/internal/domain"
)

const (
	defaultDumpBinary  = "pg_dump"
	maintenanceDB      = "postgres"
	stderrLimit        = 4096
	dumpWaitDelay      = 5 * time.Second
	listDatabasesQuery = "SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname"
)

type PostgreSQLDatabase struct {
	config *config.DatabaseConfig
	openDB func(dsn string) (*sql.DB, error)
}

func NewPostgreSQL(cfg *config.DatabaseConfig) *PostgreSQLDatabase {
	return &PostgreSQLDatabase{
		config: cfg,
		openDB: func(dsn string) (*sql.DB, error) {
			return sql.Open("postgres", dsn)
		},
	}
}

// Dump runs pg_dump and streams its plain SQL output into w. The password
// is passed through PGPASSWORD, never on the command line.
func (p *PostgreSQLDatabase) Dump(ctx context.Context, w io.Writer) error {
	binary := p.config.DumpBinary
	if binary == "" {
		binary = defaultDumpBinary
	}

	cmd := exec.CommandContext(ctx, binary, p.dumpArgs()...)
	cmd.Env = p.env()
	cmd.Stdout = w
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	cmd.WaitDelay = dumpWaitDelay

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	dumpErr := &domain.DumpProcessError{
		Binary:   binary,
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		dumpErr.Missing = true
	case errors.As(err, &exitErr):
		dumpErr.ExitCode = exitErr.ExitCode()
	}
	return dumpErr
}

func (p *PostgreSQLDatabase) dumpArgs() []string {
	var args []string
	if p.config.Host != "" {
		args = append(args, fmt.Sprintf("--host=%s", p.config.Host))
	}
	if p.config.Port != 0 {
		args = append(args, fmt.Sprintf("--port=%d", p.config.Port))
	}
	if p.config.User != "" {
		args = append(args, fmt.Sprintf("--username=%s", p.config.User))
	}
	return append(args,
		"--format=plain",
		"--no-password",
		p.config.Name,
	)
}

func (p *PostgreSQLDatabase) env() []string {
	env := os.Environ()
	if p.config.Password != "" {
		env = append(env, "PGPASSWORD="+p.config.Password)
	}
	if p.config.ConnectTimeout > 0 {
		env = append(env, fmt.Sprintf("PGCONNECT_TIMEOUT=%d", int(p.config.ConnectTimeout.Seconds())))
	}
	return env
}

func (p *PostgreSQLDatabase) GetName() string {
	return p.config.Name
}

// Ping connects to the target database and reports failures as
// *domain.ConnectionError.
func (p *PostgreSQLDatabase) Ping(ctx context.Context) error {
	db, err := p.openDB(p.dsn(p.config.Name))
	if err != nil {
		return p.connectionError(err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return p.connectionError(err)
	}
	return nil
}

// ListDatabases returns the non-template databases of the server.
func (p *PostgreSQLDatabase) ListDatabases(ctx context.Context) ([]string, error) {
	db, err := p.openDB(p.dsn(maintenanceDB))
	if err != nil {
		return nil, p.connectionError(err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, listDatabasesQuery)
	if err != nil {
		return nil, p.connectionError(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan database name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return names, nil
}

func (p *PostgreSQLDatabase) connectionError(err error) error {
	connErr := &domain.ConnectionError{Host: p.config.Host, Port: p.config.Port, Err: err}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		connErr.Code = pqErr.Code.Name()
	}
	return connErr
}

func (p *PostgreSQLDatabase) dsn(dbname string) string {
	params := []struct{ key, value string }{
		{"host", p.config.Host},
		{"user", p.config.User},
		{"password", p.config.Password},
		{"dbname", dbname},
		{"sslmode", p.config.SSLMode},
	}
	if p.config.Port != 0 {
		params = append(params, struct{ key, value string }{"port", strconv.Itoa(p.config.Port)})
	}
	if p.config.ConnectTimeout > 0 {
		params = append(params, struct{ key, value string }{"connect_timeout", strconv.Itoa(int(p.config.ConnectTimeout.Seconds()))})
	}

	parts := make([]string, 0, len(params))
	for _, param := range params {
		if param.value == "" {
			continue
		}
		parts = append(parts, param.key+"="+quoteValue(param.value))
	}
	return strings.Join(parts, " ")
}

// quoteValue quotes a conninfo value.
func quoteValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > t.limit {
		p = p[len(p)-t.limit:]
	}
	if over := t.buf.Len() + len(p) - t.limit; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
