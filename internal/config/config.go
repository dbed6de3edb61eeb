package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Log       `mapstructure:"log"       validate:"required"`
	Telemetry Telemetry `mapstructure:"telemetry" validate:"required"`
	Database  Database  `mapstructure:"database"  validate:"required"`
	Alipay    Alipay    `mapstructure:"alipay"    validate:"required"`
	Download  Download  `mapstructure:"download"  validate:"required"`
	Storage   Storage   `mapstructure:"storage"   validate:"required"`
	Job       Job       `mapstructure:"job"       validate:"required"`
	Redis     Redis     `mapstructure:"redis"`
	Notify    Notify    `mapstructure:"notify"`
	Extract   Extract   `mapstructure:"extract"`
}

type Log struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogDir   string `mapstructure:"log_dir"`
}

type Telemetry struct {
	Enabled     bool              `mapstructure:"enabled"`
	Exporter    string            `mapstructure:"exporter"     validate:"omitempty,oneof=otlp stdout none"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"     validate:"omitempty,oneof=grpc http"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name"`
}

type Database struct {
	Driver  string `mapstructure:"driver"  validate:"required,oneof=sqlite mysql"`
	DSN     string `mapstructure:"dsn"     validate:"required"`
	Migrate bool   `mapstructure:"migrate"`
}

type Alipay struct {
	GatewayURL string        `mapstructure:"gateway_url" validate:"required,url"`
	Timeout    time.Duration `mapstructure:"timeout"     validate:"required,gt=0"`
}

type Download struct {
	// The provider invalidates a download URL about 30 seconds after issuing it.
	Timeout    time.Duration `mapstructure:"timeout"     validate:"required,gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=5"`
	Workers    int           `mapstructure:"workers"     validate:"min=1,max=32"`
	Progress   bool          `mapstructure:"progress"`
}

type Storage struct {
	Directory string `mapstructure:"directory" validate:"required"`
	Namespace string `mapstructure:"namespace" validate:"required"`
}

type Job struct {
	TimeZone string   `mapstructure:"time_zone" validate:"required"`
	Schedule []string `mapstructure:"schedule"  validate:"dive,required"`
}

type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"       validate:"min=0"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" validate:"required_with=Addr"`
}

type Notify struct {
	Telegram Telegram `mapstructure:"telegram"`
}

type Telegram struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id" validate:"required_with=Token"`
}

type Extract struct {
	Directory string `mapstructure:"directory"`
}

// Location resolves the reporting time zone.
func (j Job) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(j.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", j.TimeZone, err)
	}
	return loc, nil
}

// Load reads configuration from (in increasing priority) defaults, the config
// file, a .env file, environment variables and changed command-line flags.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix("ALIPAY_BILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.alipay-bill")
		v.AddConfigPath("/etc/alipay-bill")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			// only section-qualified flags ("download.workers") map to config keys
			if !strings.Contains(f.Name, ".") || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.log_dir", "logs")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "alipay-bill")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "alipay-bill.db")
	v.SetDefault("database.migrate", true)
	v.SetDefault("alipay.gateway_url", "https://openapi.alipay.com/gateway.do")
	v.SetDefault("alipay.timeout", 15*time.Second)
	v.SetDefault("download.timeout", 25*time.Second)
	v.SetDefault("download.max_retries", 0)
	v.SetDefault("download.workers", 1)
	v.SetDefault("download.progress", false)
	v.SetDefault("storage.directory", "data")
	v.SetDefault("storage.namespace", "alipay-bill")
	v.SetDefault("job.time_zone", "Asia/Shanghai")
	v.SetDefault("job.schedule", []string{"0 9 * * *", "0 10 * * *"})
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 30*time.Minute)
	v.SetDefault("notify.telegram.token", "")
	v.SetDefault("notify.telegram.chat_id", 0)
	v.SetDefault("extract.directory", "extracted")
}

func Validate(cfg Config) error {
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when using otlp exporter")
	}
	if _, err := cfg.Job.Location(); err != nil {
		return err
	}
	return nil
}
