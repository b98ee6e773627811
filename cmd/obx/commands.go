package main

import (
	"fmt"
	"strings"

	"github.com/semmidev/obx/internal/app"
	"github.com/semmidev/obx/internal/config"
	"github.com/semmidev/obx/internal/domain"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath     string
	setupCron      bool
	nonInteractive bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "obx",
		Short:         "Back up an Odoo database and its filestore into one archive.",
		Long:          "obx dumps an Odoo PostgreSQL database with pg_dump, bundles its filestore and writes both into {database}_{YYYYMMDD}_{HHMMSS}.zip.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				artifact, err := a.Backup(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), artifact.Path)
				if opts.setupCron {
					return installSchedule(cmd, opts, a)
				}
				return nil
			})
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default is $HOME/.obx.yaml)")
	flags.String("host", "", "PostgreSQL host")
	flags.Int("port", 0, "PostgreSQL port")
	flags.String("user", "", "PostgreSQL user")
	flags.String("password", "", "PostgreSQL password (prefer OBX_DATABASE_PASSWORD or ~/.pgpass)")
	flags.String("database", "", "database name")
	flags.String("filestore-path", "", "Odoo filestore path (detected when empty)")
	flags.String("output-path", "", "output directory for backups")
	flags.String("schedule", "", "five field cron expression for scheduled backups")
	flags.String("on-existing", "", "what to do with existing schedule entries: replace, add or cancel")
	flags.String("log-level", "", "log level")
	flags.String("log-file", "", "log file")
	flags.BoolVar(&opts.nonInteractive, "non-interactive", false, "run without prompting")
	cmd.Flags().BoolVar(&opts.setupCron, "setup-cron", false, "install a crontab entry for this backup after it succeeds")

	cmd.AddCommand(
		newScheduleCmd(opts),
		newListDatabasesCmd(opts),
		newDaemonCmd(opts),
	)
	return cmd
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Install or update the crontab entry for unattended backups.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				if !list {
					return installSchedule(cmd, opts, a)
				}
				existing, err := a.ExistingSchedules(cmd.Context())
				if err != nil {
					return err
				}
				for _, e := range existing {
					fmt.Fprintln(cmd.OutOrStdout(), e.Raw)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "only print the installed obx entries")
	return cmd
}

func newListDatabasesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list-databases",
		Short: "List the databases available on the server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				names, err := a.ListDatabases(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run backups in the foreground on the configured schedule.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.App) error {
				return a.Run(cmd.Context())
			})
		},
	}
}

func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app.App) error) error {
	cfg, err := config.Load(opts.configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Shutdown()

	return fn(application)
}

func installSchedule(cmd *cobra.Command, opts *rootOptions, a *app.App) error {
	action, err := a.ScheduleAction()
	if err != nil {
		return err
	}
	ask := interactive(cmd, opts)

	out := cmd.OutOrStdout()
	plan, err := a.InstallSchedule(cmd.Context(), func(existing []domain.ScheduleEntry) domain.Action {
		fmt.Fprintf(out, "Found %d existing obx schedule entr%s:\n", len(existing), plural(len(existing)))
		for i, e := range existing {
			fmt.Fprintf(out, "  %d. %s\n", i+1, strings.TrimSpace(e.Raw))
		}
		if ask {
			return promptAction(cmd.InOrStdin(), out, action)
		}
		fmt.Fprintf(out, "Action: %s\n", action)
		return action
	})
	if err != nil {
		return err
	}

	switch {
	case plan.Action == domain.ActionCancel && len(plan.Add) == 0:
		fmt.Fprintln(out, "Schedule setup cancelled")
	case !plan.Changed:
		fmt.Fprintln(out, "This schedule entry is already installed")
	default:
		for _, e := range plan.Add {
			fmt.Fprintf(out, "Installed: %s\n", e.Raw)
		}
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
