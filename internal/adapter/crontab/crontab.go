// Package crontab stores schedule tables, either through the crontab(1)
// command or as a plain file.
package crontab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/semmidev/obx/internal/domain"
)

const defaultBinary = "crontab"

// CommandTable is the current user's crontab. Installing goes through
// "crontab -", which replaces the table in one step.
type CommandTable struct {
	binary string
}

func NewCommandTable(binary string) *CommandTable {
	if binary == "" {
		binary = defaultBinary
	}
	return &CommandTable{binary: binary}
}

func (t *CommandTable) Read(ctx context.Context) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, "-l")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", &domain.ScheduleReadError{
			Missing: strings.Contains(strings.ToLower(msg), "no crontab"),
			Err:     err,
		}
	}
	return stdout.String(), nil
}

func (t *CommandTable) Commit(ctx context.Context, text string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, "-")
	cmd.Stdin = strings.NewReader(text)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return &domain.ScheduleWriteError{Err: fmt.Errorf("%s not found, install cron or add the entry manually: %w", t.binary, err)}
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return &domain.ScheduleWriteError{Err: err}
	}
	return nil
}
