package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/config"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/telemetry"
)

// skipServices marks commands that only need the configuration.
const skipServices = "skip-services"

var (
	cfgFile  string
	cfg      config.Config
	logger   *zap.SugaredLogger
	tracer   trace.Tracer
	meter    metric.Meter
	shutdown func(context.Context) error
	services *internal.Services
	Version  = "dev" // Set at build time: go build -ldflags "-X github.com/Qubut/IP-Claim/packages/alipay_bill/cmd.Version=v1.0.0"
)

var RootCmd = &cobra.Command{
	Use:           "alipay-bill",
	Short:         "Alipay daily bill downloader",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		var logFile string
		if logDir := cfg.Log.LogDir; logDir != "" {
			if err := os.MkdirAll(logDir, 0o755); err != nil {
				return fmt.Errorf("create log directory: %w", err)
			}
			logFile = filepath.Join(logDir,
				fmt.Sprintf("alipay-bill[%s].log", time.Now().Format("20060102-150405")))
		}

		teleCfg := telemetry.Config{
			Enabled:     cfg.Telemetry.Enabled,
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    cfg.Telemetry.Exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			LogFile:     logFile,
			LogLevel:    cfg.Log.LogLevel,
			Console:     zapcore.Lock(os.Stderr),
		}
		tracer, meter, logger, shutdown, err = telemetry.InitOTEL(teleCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		if cmd.Annotations[skipServices] == "true" {
			return nil
		}
		services, err = internal.InitServices(cmd.Context(), cfg, tracer, logger, meter)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		var errs []error
		if services != nil {
			errs = append(errs, services.Close())
		}
		if shutdown != nil {
			errs = append(errs, shutdown(context.Background()))
		}
		if err := errors.Join(errs...); err != nil {
			logger.Errorw("shutdown error", "err", err)
			return err
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of alipay-bill",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config operations",
}

var printConfigCmd = &cobra.Command{
	Use:         "print",
	Short:       "Print the current loaded configuration",
	Annotations: map[string]string{skipServices: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to config file (yaml/json/toml)")

	flags.String("log.log-level", "info", "Log level (debug/info/warn/error)")
	flags.String("log.log-dir", "logs", "Log directory, empty to disable the log file")
	flags.Bool("telemetry.enabled", false, "Enable OpenTelemetry")
	flags.String("telemetry.exporter", "otlp", "Telemetry exporter (otlp|stdout|none)")
	flags.String("telemetry.endpoint", "localhost:4317", "OTLP endpoint (host:port)")
	flags.String("telemetry.protocol", "grpc", "OTLP protocol (grpc|http)")
	flags.Bool("telemetry.insecure", true, "Allow insecure OTLP connection")
	flags.String("telemetry.service-name", "alipay-bill", "Service name for telemetry")
	flags.String("database.driver", "sqlite", "Database driver (sqlite|mysql)")
	flags.String("database.dsn", "alipay-bill.db", "Database DSN")
	flags.String("alipay.gateway-url", "https://openapi.alipay.com/gateway.do", "Alipay open platform gateway")
	flags.Duration("download.timeout", 25*time.Second, "Bill file fetch timeout")
	flags.Int("download.max-retries", 0, "Fetch retries on transport errors")
	flags.Int("download.workers", 1, "Concurrent (account, bill type) pairs")
	flags.Bool("download.progress", false, "Show a progress bar")
	flags.String("storage.directory", "data", "Blob storage root directory")
	flags.String("job.time-zone", "Asia/Shanghai", "Reporting time zone")
	flags.String("redis.addr", "", "Redis address for the run lock, empty to disable")
	flags.String("extract.directory", "extracted", "Directory extracted bills are written to")

	configCmd.AddCommand(printConfigCmd)

	RootCmd.AddCommand(downloadCmd)
	RootCmd.AddCommand(scheduleCmd)
	RootCmd.AddCommand(extractCmd)
	RootCmd.AddCommand(accountCmd)
	RootCmd.AddCommand(billsCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configCmd)
}
