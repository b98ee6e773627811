package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/pflag"
)

const sampleConfig = `
app:
  log_level: debug
database:
  host: db.internal
  port: 5433
  user: backup
  name: prod
  connect_timeout: 30s
filestore:
  data_dir: /srv/odoo
  config_files:
    - /etc/odoo/odoo.conf
backup:
  output_path: /var/backups/odoo
  retention_days: 14
schedule:
  expression: "30 1 * * *"
  recognize:
    - uvx obx
    - pipx run obx
notify:
  telegram:
    enabled: true
    bot_token: "123:abc"
    chat_id: "42"
`

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("obx", pflag.ContinueOnError)
	flags.String("host", "localhost", "")
	flags.Int("port", 5432, "")
	flags.String("database", "", "")
	flags.String("output-path", "./backups", "")
	flags.String("schedule", "0 2 * * *", "")
	flags.String("on-existing", "replace", "")
	return flags
}

func writeConfig(dir, content string) string {
	path := filepath.Join(dir, "obx.yaml")
	So(os.WriteFile(path, []byte(content), 0644), ShouldBeNil)
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given the config package", t, func() {
		tempDir, err := os.MkdirTemp("", "config_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		Convey("When loading a config file", func() {
			path := writeConfig(tempDir, sampleConfig)
			cfg, err := Load(path, nil)

			Convey("It should read every section", func() {
				So(err, ShouldBeNil)
				So(cfg.File(), ShouldEqual, path)
				So(cfg.App.LogLevel, ShouldEqual, "debug")
				So(cfg.Database.Host, ShouldEqual, "db.internal")
				So(cfg.Database.Port, ShouldEqual, 5433)
				So(cfg.Database.ConnectTimeout, ShouldEqual, 30*time.Second)
				So(cfg.Filestore.DataDir, ShouldEqual, "/srv/odoo")
				So(cfg.Filestore.ConfigFiles, ShouldResemble, []string{"/etc/odoo/odoo.conf"})
				So(cfg.Backup.RetentionDays, ShouldEqual, 14)
				So(cfg.Schedule.Expression, ShouldEqual, "30 1 * * *")
				So(cfg.Schedule.Recognize, ShouldResemble, []string{"uvx obx", "pipx run obx"})
				So(cfg.Notify.Telegram.Enabled, ShouldBeTrue)
			})

			Convey("Unset keys should keep their defaults", func() {
				So(cfg.Database.SSLMode, ShouldEqual, "prefer")
				So(cfg.Database.DumpBinary, ShouldEqual, "pg_dump")
				So(cfg.Schedule.Launcher, ShouldEqual, "obx")
				So(cfg.Schedule.OnExisting, ShouldEqual, "replace")
				So(cfg.Backup.CompressionLevel, ShouldEqual, -1)
			})
		})

		Convey("When flags are given", func() {
			path := writeConfig(tempDir, sampleConfig)
			flags := testFlags()
			So(flags.Parse([]string{"--host", "flag-host", "--database", "other"}), ShouldBeNil)
			cfg, err := Load(path, flags)

			Convey("Changed flags should win over the file", func() {
				So(err, ShouldBeNil)
				So(cfg.Database.Host, ShouldEqual, "flag-host")
				So(cfg.Database.Name, ShouldEqual, "other")
			})

			Convey("Unchanged flags should not override the file", func() {
				So(cfg.Database.Port, ShouldEqual, 5433)
				So(cfg.Backup.OutputPath, ShouldEqual, "/var/backups/odoo")
			})
		})

		Convey("When the explicit file does not exist", func() {
			_, err := Load(filepath.Join(tempDir, "missing.yaml"), nil)

			Convey("It should return error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to read config")
			})
		})

		Convey("When the file is not valid YAML", func() {
			path := writeConfig(tempDir, "database: [unterminated\n")
			_, err := Load(path, nil)

			Convey("It should return error", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the file holds invalid values", func() {
			cases := []struct{ content, key string }{
				{"schedule:\n  expression: \"every night\"\n", "schedule.expression"},
				{"schedule:\n  on_existing: merge\n", "schedule.on_existing"},
				{"database:\n  port: 70000\n", "database.port"},
				{"backup:\n  compression_level: 12\n", "backup.compression_level"},
				{"backup:\n  retention_days: -1\n", "backup.retention_days"},
				{"notify:\n  telegram:\n    enabled: true\n    chat_id: \"1\"\n", "bot_token"},
			}
			for _, c := range cases {
				_, err := Load(writeConfig(tempDir, c.content), nil)
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, c.key)
			}
		})
	})
}

func TestLoadDefaults(t *testing.T) {
	Convey("Given no config file and OBX_ environment variables", t, func() {
		home, err := os.MkdirTemp("", "config_home")
		So(err, ShouldBeNil)
		defer os.RemoveAll(home)

		homedir.DisableCache = true
		defer func() { homedir.DisableCache = false }()
		t.Setenv("HOME", home)
		t.Setenv("OBX_DATABASE_PASSWORD", "from-env")
		t.Setenv("OBX_BACKUP_RETENTION_DAYS", "3")

		cfg, err := Load("", nil)

		Convey("It should use defaults overlaid with the environment", func() {
			So(err, ShouldBeNil)
			So(cfg.File(), ShouldEqual, "")
			So(cfg.Database.Host, ShouldEqual, "localhost")
			So(cfg.Database.Port, ShouldEqual, 5432)
			So(cfg.Database.Password, ShouldEqual, "from-env")
			So(cfg.Backup.RetentionDays, ShouldEqual, 3)
			So(cfg.Backup.OutputPath, ShouldEqual, "./backups")
			So(cfg.Schedule.Recognize, ShouldResemble, []string{"uvx obx"})
		})

		Convey("A .obx.yaml in the home directory should be picked up", func() {
			So(os.WriteFile(filepath.Join(home, ".obx.yaml"), []byte("database:\n  name: homedb\n"), 0644), ShouldBeNil)
			cfg, err := Load("", nil)
			So(err, ShouldBeNil)
			So(cfg.Database.Name, ShouldEqual, "homedb")
			So(cfg.File(), ShouldEqual, filepath.Join(home, ".obx.yaml"))
		})
	})
}
