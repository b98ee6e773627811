package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kballard/go-shellquote"
	"github.com/robfig/cron/v3"
	"github.com/semmidev/obx/internal/domain"
)

// TableStore reads and atomically replaces a schedule table.
type TableStore interface {
	Read(ctx context.Context) (string, error)
	Commit(ctx context.Context, text string) error
}

// Chooser picks the action when the table already holds entries of this
// tool. It is only called in that case.
type Chooser func(existing []domain.ScheduleEntry) domain.Action

// Reconciler merges a new entry into a schedule table without touching
// foreign entries.
type Reconciler struct {
	store     TableStore
	signature domain.Signature
	logger    Logger
}

func NewReconciler(store TableStore, signature domain.Signature, logger Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		signature: signature,
		logger:    logger,
	}
}

// ValidateExpression checks a five field schedule expression.
func ValidateExpression(expression string) error {
	if _, err := cron.ParseStandard(expression); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expression, err)
	}
	return nil
}

// NewEntry builds a validated entry.
func NewEntry(expression, command string) (domain.ScheduleEntry, error) {
	if err := ValidateExpression(expression); err != nil {
		return domain.ScheduleEntry{}, err
	}
	entry := domain.NewScheduleEntry(expression, command)
	if !entry.IsJob() {
		return domain.ScheduleEntry{}, errors.New("schedule command is empty")
	}
	return entry, nil
}

// BuildScheduleCommand returns the non-interactive command line that
// reproduces req. The password is never part of it.
func BuildScheduleCommand(launcher []string, req domain.BackupRequest, configFile string) string {
	args := append([]string{}, launcher...)
	args = append(args,
		"--host", req.Host,
		"--port", strconv.Itoa(req.Port),
		"--user", req.User,
		"--database", req.Database,
	)
	if req.FilestorePath != "" {
		args = append(args, "--filestore-path", req.FilestorePath)
	}
	args = append(args, "--output-path", req.OutputPath)
	if configFile != "" {
		args = append(args, "--config", configFile)
	}
	args = append(args, "--non-interactive")
	return shellquote.Join(args...)
}

// Load reads the current table. A read failure is reported as a warning and
// yields an empty table.
func (r *Reconciler) Load(ctx context.Context) (domain.ScheduleTable, error) {
	text, err := r.store.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var readErr *domain.ScheduleReadError
		if !errors.As(err, &readErr) {
			err = &domain.ScheduleReadError{Err: err}
		}
		r.logger.Warnf("Treating schedule table as empty: %v", err)
		return domain.ScheduleTable{}, nil
	}
	return domain.ParseScheduleTable(text), nil
}

// Existing returns the entries of this tool currently installed.
func (r *Reconciler) Existing(ctx context.Context) ([]domain.ScheduleEntry, error) {
	table, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return table.Matching(r.signature), nil
}

// Reconcile computes and installs the plan for entry. The table is written
// in one Commit call, and only when it changed.
func (r *Reconciler) Reconcile(ctx context.Context, entry domain.ScheduleEntry, choose Chooser) (domain.ScheduleEditPlan, error) {
	table, err := r.Load(ctx)
	if err != nil {
		return domain.ScheduleEditPlan{}, err
	}

	action := domain.ActionReplace
	if existing := table.Matching(r.signature); len(existing) > 0 {
		r.logger.Infof("Found %d existing schedule entries of this tool", len(existing))
		if choose == nil {
			return domain.ScheduleEditPlan{}, errors.New("existing schedule entries found and no action chosen")
		}
		action = choose(existing)
	}

	plan, err := PlanEdit(table, entry, r.signature, action)
	if err != nil {
		return plan, err
	}
	if !plan.Changed {
		r.logger.Infof("Schedule table unchanged (%s)", plan.Action)
		return plan, nil
	}

	if err := r.store.Commit(ctx, plan.Result.Render()); err != nil {
		var writeErr *domain.ScheduleWriteError
		if !errors.As(err, &writeErr) {
			err = &domain.ScheduleWriteError{Err: err}
		}
		return plan, err
	}
	r.logger.Infof("Schedule table updated (%s): removed %d, added %d", plan.Action, len(plan.Remove), len(plan.Add))
	return plan, nil
}

// PlanEdit is the pure table transformation behind Reconcile. Entries not
// matching sig keep their position and raw text.
func PlanEdit(table domain.ScheduleTable, entry domain.ScheduleEntry, sig domain.Signature, action domain.Action) (domain.ScheduleEditPlan, error) {
	if !entry.IsJob() {
		return domain.ScheduleEditPlan{}, errors.New("new schedule entry has no command")
	}
	if !sig.Matches(entry) {
		return domain.ScheduleEditPlan{}, fmt.Errorf("new schedule entry does not match launcher %s", sig)
	}

	plan := domain.ScheduleEditPlan{Action: action}
	matches := table.Matching(sig)

	if len(matches) == 0 {
		plan.Add = []domain.ScheduleEntry{entry}
		plan.Result = append(cloneTable(table), entry)
		plan.Changed = true
		return plan, nil
	}

	switch action {
	case domain.ActionCancel:
		plan.Result = cloneTable(table)

	case domain.ActionAdd:
		for _, e := range matches {
			if e.SameJob(entry) {
				plan.Result = cloneTable(table)
				return plan, nil
			}
		}
		plan.Add = []domain.ScheduleEntry{entry}
		plan.Result = append(cloneTable(table), entry)
		plan.Changed = true

	case domain.ActionReplace:
		// An installed entry identical to the new one keeps its raw text.
		insert := entry
		for _, e := range matches {
			if e.SameJob(entry) {
				insert = e
				break
			}
		}

		result := make(domain.ScheduleTable, 0, len(table))
		inserted := false
		for _, e := range table {
			if !sig.Matches(e) {
				result = append(result, e)
				continue
			}
			if !inserted {
				result = append(result, insert)
				inserted = true
			}
		}
		plan.Result = result
		plan.Changed = result.Render() != table.Render()
		if plan.Changed {
			plan.Remove = matches
			plan.Add = []domain.ScheduleEntry{entry}
		}

	default:
		return domain.ScheduleEditPlan{}, fmt.Errorf("unsupported schedule action %s", action)
	}
	return plan, nil
}

func cloneTable(table domain.ScheduleTable) domain.ScheduleTable {
	out := make(domain.ScheduleTable, len(table), len(table)+1)
	copy(out, table)
	return out
}
