package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "OBX"
	configFileName = ".obx"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Filestore FilestoreConfig `mapstructure:"filestore"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Notify    NotifyConfig    `mapstructure:"notify"`

	file string
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	// DumpBinary is the pg_dump executable.
	DumpBinary     string        `mapstructure:"dump_binary"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type FilestoreConfig struct {
	// Path skips detection when set.
	Path string `mapstructure:"path"`
	// DataDir is the Odoo data directory; {data_dir}/filestore/{db} is
	// probed first.
	DataDir     string   `mapstructure:"data_dir"`
	ConfigFiles []string `mapstructure:"config_files"`
	// Candidates replace the built-in conventional locations when set.
	Candidates []string `mapstructure:"candidates"`
}

type BackupConfig struct {
	OutputPath       string `mapstructure:"output_path"`
	CompressionLevel int    `mapstructure:"compression_level"`
	RetentionDays    int    `mapstructure:"retention_days"`
}

type ScheduleConfig struct {
	Expression string `mapstructure:"expression"`
	// Launcher is the command prefix installed entries start with.
	Launcher string `mapstructure:"launcher"`
	// Recognize lists further launchers whose entries count as ours.
	Recognize []string `mapstructure:"recognize"`
	// TableFile switches from the user crontab to a table file.
	TableFile     string `mapstructure:"table_file"`
	CrontabBinary string `mapstructure:"crontab_binary"`
	OnExisting    string `mapstructure:"on_existing"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"host":           "database.host",
	"port":           "database.port",
	"user":           "database.user",
	"password":       "database.password",
	"database":       "database.name",
	"filestore-path": "filestore.path",
	"output-path":    "backup.output_path",
	"schedule":       "schedule.expression",
	"on-existing":    "schedule.on_existing",
	"log-level":      "app.log_level",
	"log-file":       "app.log_file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "obx")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "odoo")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.dump_binary", "pg_dump")
	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("filestore.path", "")
	v.SetDefault("filestore.data_dir", "")
	v.SetDefault("filestore.config_files", []string{})
	v.SetDefault("filestore.candidates", []string{})

	v.SetDefault("backup.output_path", "./backups")
	v.SetDefault("backup.compression_level", -1)
	v.SetDefault("backup.retention_days", 0)

	v.SetDefault("schedule.expression", "0 2 * * *")
	v.SetDefault("schedule.launcher", "obx")
	v.SetDefault("schedule.recognize", []string{"uvx obx"})
	v.SetDefault("schedule.table_file", "")
	v.SetDefault("schedule.crontab_binary", "crontab")
	v.SetDefault("schedule.on_existing", "replace")

	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
}

// Load reads path (or $HOME/.obx.yaml when path is empty and the file
// exists), then OBX_* environment variables, then the changed flags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.file = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port %d is out of range", c.Database.Port)
	}
	if c.Backup.OutputPath == "" {
		return fmt.Errorf("backup.output_path is required")
	}
	if c.Backup.CompressionLevel < -2 || c.Backup.CompressionLevel > 9 {
		return fmt.Errorf("backup.compression_level must be between -2 and 9")
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup.retention_days must not be negative")
	}
	if _, err := cron.ParseStandard(c.Schedule.Expression); err != nil {
		return fmt.Errorf("schedule.expression %q: %w", c.Schedule.Expression, err)
	}
	if strings.TrimSpace(c.Schedule.Launcher) == "" {
		return fmt.Errorf("schedule.launcher is required")
	}
	switch strings.ToLower(c.Schedule.OnExisting) {
	case "replace", "add", "cancel":
	default:
		return fmt.Errorf("schedule.on_existing must be replace, add or cancel")
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when enabled")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id is required when enabled")
		}
	}
	return nil
}

// File returns the configuration file that was read, if any.
func (c *Config) File() string {
	return c.file
}
