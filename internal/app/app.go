package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"github.com/semmidev/obx/internal/adapter/compressor"
	"github.com/semmidev/obx/internal/adapter/crontab"
	"github.com/semmidev/obx/internal/adapter/database"
	"github.com/semmidev/obx/internal/adapter/notifier"
	"github.com/semmidev/obx/internal/adapter/odooconf"
	"github.com/semmidev/obx/internal/adapter/storage"
	"github.com/semmidev/obx/internal/config"
	"github.com/semmidev/obx/internal/domain"
	"github.com/semmidev/obx/internal/infrastructure/logger"
	"github.com/semmidev/obx/internal/infrastructure/scheduler"
	"github.com/semmidev/obx/internal/usecase"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	outputPath string
	filestore  string
	database   *database.PostgreSQLDatabase
	backupUC   *usecase.Backup
	cleanupUC  *usecase.Cleanup
	reconciler *usecase.Reconciler
	signature  domain.Signature
	scheduler  *scheduler.Scheduler
}

func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if cfg.File() != "" {
		log.Debugf("Using config file: %s", cfg.File())
	}

	outputPath, err := absPath(cfg.Backup.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}
	filestore := ""
	if cfg.Filestore.Path != "" {
		if filestore, err = absPath(cfg.Filestore.Path); err != nil {
			return nil, fmt.Errorf("failed to resolve filestore path: %w", err)
		}
	}
	localStorage, err := storage.NewLocal(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}

	signature, err := domain.ParseSignature(append([]string{cfg.Schedule.Launcher}, cfg.Schedule.Recognize...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule launcher: %w", err)
	}

	db := database.NewPostgreSQL(&cfg.Database)
	locator := usecase.NewLocator(locatorOptions(cfg), odooconf.NewReader(), log)
	comp := compressor.NewZip(cfg.Backup.CompressionLevel)
	notify := initializeNotifier(cfg, log)

	return &App{
		config:     cfg,
		logger:     log,
		outputPath: outputPath,
		filestore:  filestore,
		database:   db,
		backupUC:   usecase.NewBackup(db, locator, localStorage, comp, notify, log),
		cleanupUC:  usecase.NewCleanup(localStorage, log, cfg.Backup.RetentionDays),
		reconciler: usecase.NewReconciler(initializeTableStore(cfg), signature, log),
		signature:  signature,
	}, nil
}

func locatorOptions(cfg *config.Config) usecase.LocatorOptions {
	opts := usecase.LocatorOptions{}
	if cfg.Filestore.DataDir != "" {
		opts.DataDirs = []string{cfg.Filestore.DataDir}
	}

	if rc := os.Getenv("ODOO_RC"); rc != "" {
		opts.ConfigFiles = append(opts.ConfigFiles, rc)
	}
	opts.ConfigFiles = append(opts.ConfigFiles, cfg.Filestore.ConfigFiles...)
	opts.ConfigFiles = append(opts.ConfigFiles, domain.DefaultOdooConfigFiles()...)

	if len(cfg.Filestore.Candidates) > 0 {
		for _, tmpl := range cfg.Filestore.Candidates {
			opts.Candidates = append(opts.Candidates, domain.FilestoreCandidate{Template: tmpl})
		}
	} else {
		opts.Candidates = domain.DefaultFilestoreCandidates()
	}
	return opts
}

func initializeNotifier(cfg *config.Config, log *logger.Logger) domain.Notifier {
	if !cfg.Notify.Telegram.Enabled {
		return nil
	}
	tg, err := notifier.NewTelegram(&cfg.Notify.Telegram)
	if err != nil {
		log.Errorf("Failed to initialize Telegram: %v", err)
		return nil
	}
	log.Infof("✓ Telegram notifications enabled")
	return tg
}

func initializeTableStore(cfg *config.Config) usecase.TableStore {
	if cfg.Schedule.TableFile != "" {
		path, err := homedir.Expand(cfg.Schedule.TableFile)
		if err != nil {
			path = cfg.Schedule.TableFile
		}
		return crontab.NewFileTable(path)
	}
	return crontab.NewCommandTable(cfg.Schedule.CrontabBinary)
}

func absPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// Request builds the request for a run starting at now.
func (a *App) Request(now time.Time) domain.BackupRequest {
	db := a.config.Database
	return domain.BackupRequest{
		Host:          db.Host,
		Port:          db.Port,
		User:          db.User,
		Password:      db.Password,
		Database:      a.database.GetName(),
		FilestorePath: a.filestore,
		OutputPath:    a.outputPath,
		Timestamp:     now,
	}
}

// Backup performs one run and then applies retention.
func (a *App) Backup(ctx context.Context) (domain.BackupArtifact, error) {
	req := a.Request(time.Now())
	artifact, err := a.backupUC.Execute(ctx, req, &logObserver{logger: a.logger, database: req.Database})
	if err != nil {
		return artifact, err
	}

	if _, err := a.cleanupUC.Execute(ctx, req.Database); err != nil {
		a.logger.Errorf("[%s] Cleanup failed: %v", req.Database, err)
	}
	return artifact, nil
}

func (a *App) ListDatabases(ctx context.Context) ([]string, error) {
	return a.database.ListDatabases(ctx)
}

// ScheduleEntry returns the entry that runs the configured backup
// unattended.
func (a *App) ScheduleEntry() (domain.ScheduleEntry, error) {
	req := a.Request(time.Now())
	if req.Database == "" {
		return domain.ScheduleEntry{}, errors.New("database name is required to schedule a backup")
	}

	configFile := ""
	if a.config.File() != "" {
		var err error
		if configFile, err = filepath.Abs(a.config.File()); err != nil {
			return domain.ScheduleEntry{}, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	command := usecase.BuildScheduleCommand(a.signature.Primary(), req, configFile)
	return usecase.NewEntry(a.config.Schedule.Expression, command)
}

// ScheduleAction is the configured choice for existing entries.
func (a *App) ScheduleAction() (domain.Action, error) {
	return domain.ParseAction(a.config.Schedule.OnExisting)
}

// ExistingSchedules lists installed entries of this tool.
func (a *App) ExistingSchedules(ctx context.Context) ([]domain.ScheduleEntry, error) {
	return a.reconciler.Existing(ctx)
}

func (a *App) InstallSchedule(ctx context.Context, choose usecase.Chooser) (domain.ScheduleEditPlan, error) {
	entry, err := a.ScheduleEntry()
	if err != nil {
		return domain.ScheduleEditPlan{}, err
	}
	a.logger.Infof("Schedule entry: %s", entry.Raw)
	return a.reconciler.Reconcile(ctx, entry, choose)
}

// Run backs up on the configured schedule until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.config.Database.Name == "" {
		return errors.New("database name is required for scheduled backups")
	}

	a.scheduler = scheduler.New(scheduler.WithLogger(a.logger.CronLogger()))
	spec := a.config.Schedule.Expression
	if err := a.scheduler.AddJob(spec, func(ctx context.Context) error {
		a.logger.Infof("=== Triggered scheduled backup for %s ===", a.config.Database.Name)
		_, err := a.Backup(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("failed to schedule backup for %s: %w", a.config.Database.Name, err)
	}

	a.scheduler.Start()
	a.logger.Infof("Scheduler started: %s backs up %s into %s", spec, a.config.Database.Name, a.outputPath)

	<-ctx.Done()
	return nil
}

func (a *App) Shutdown() {
	a.logger.Debugf("Shutting down application...")
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	a.logger.Close()
}

type logObserver struct {
	logger   *logger.Logger
	database string
	files    int
}

func (o *logObserver) StageChanged(stage domain.Stage) {
	o.logger.Debugf("[%s] Stage: %s", o.database, stage)
}

func (o *logObserver) FileAdded(relPath string, size int64) {
	o.files++
	o.logger.Debugf("[%s] + %s (%s)", o.database, relPath, humanize.Bytes(uint64(size)))
	if o.files%1000 == 0 {
		o.logger.Infof("[%s] %d filestore files added", o.database, o.files)
	}
}
