package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/logger"
)

type Config struct {
	Enabled     bool
	ServiceName string            // e.g. "alipay-bill"
	Exporter    string            // "otlp", "stdout" or "none"
	Endpoint    string            // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string            // "grpc" or "http"
	Insecure    bool              // plain-text OTLP, development only
	Headers     map[string]string // extra OTLP headers, e.g. auth
	LogFile     string            // rotated JSON log file, optional
	LogLevel    string
	Console     zapcore.WriteSyncer // human-readable log output, optional
}

type exporters struct {
	trace  sdktrace.SpanExporter
	metric sdkmetric.Exporter
	log    log.Exporter
}

// InitOTEL sets up providers and returns a tracer, a meter and a logger bridged
// into the log pipeline. When telemetry is disabled the tracer and meter are
// no-ops and the logger only writes to the console and the log file.
func InitOTEL(
	cfg Config,
) (trace.Tracer, metric.Meter, *zap.SugaredLogger, func(context.Context) error, error) {
	if !cfg.Enabled || cfg.Exporter == "none" {
		l, sync := logger.NewLogger(cfg.LogFile, cfg.LogLevel, cfg.Console)
		shutdown := func(context.Context) error {
			_ = sync()
			return nil
		}
		return tracenoop.NewTracerProvider().Tracer(cfg.ServiceName),
			metricnoop.NewMeterProvider().Meter(cfg.ServiceName),
			l, shutdown, nil
	}

	ctx := context.Background()
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	exp, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp.trace),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp.metric)),
	)
	otel.SetMeterProvider(mp)

	lp := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exp.log)),
		log.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	cores := logger.Cores(cfg.LogFile, logger.ParseLevel(cfg.LogLevel), cfg.Console)
	cores = append(cores, otelzap.NewCore(
		cfg.ServiceName,
		otelzap.WithLoggerProvider(global.GetLoggerProvider()),
		otelzap.WithVersion("1.0.0"),
	))
	zapLogger := zap.New(zapcore.NewTee(cores...))

	shutdown := func(ctx context.Context) error {
		_ = zapLogger.Sync()
		return errors.Join(
			tp.Shutdown(ctx),
			lp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
	}

	return otel.Tracer(cfg.ServiceName), otel.Meter(cfg.ServiceName), zapLogger.Sugar(), shutdown, nil
}

func newExporters(ctx context.Context, cfg Config) (exporters, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdoutExporters()
	case "otlp":
		if cfg.Endpoint == "" {
			return exporters{}, fmt.Errorf("OTLP endpoint required")
		}
		switch cfg.Protocol {
		case "", "grpc":
			return grpcExporters(ctx, cfg)
		case "http":
			return httpExporters(ctx, cfg)
		default:
			return exporters{}, fmt.Errorf("invalid protocol: %s", cfg.Protocol)
		}
	default:
		return exporters{}, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

func stdoutExporters() (exporters, error) {
	var (
		exp exporters
		err error
	)
	if exp.trace, err = stdouttrace.New(stdouttrace.WithPrettyPrint()); err != nil {
		return exporters{}, err
	}
	if exp.metric, err = stdoutmetric.New(stdoutmetric.WithPrettyPrint()); err != nil {
		return exporters{}, err
	}
	if exp.log, err = stdoutlog.New(); err != nil {
		return exporters{}, err
	}
	return exp, nil
}

func grpcExporters(ctx context.Context, cfg Config) (exporters, error) {
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		traceOpts = append(traceOpts, otlptracegrpc.WithHeaders(cfg.Headers))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithHeaders(cfg.Headers))
		logOpts = append(logOpts, otlploggrpc.WithHeaders(cfg.Headers))
	}

	var (
		exp exporters
		err error
	)
	if exp.trace, err = otlptrace.New(ctx, otlptracegrpc.NewClient(traceOpts...)); err != nil {
		return exporters{}, err
	}
	if exp.metric, err = otlpmetricgrpc.New(ctx, metricOpts...); err != nil {
		return exporters{}, err
	}
	if exp.log, err = otlploggrpc.New(ctx, logOpts...); err != nil {
		return exporters{}, err
	}
	return exp, nil
}

func httpExporters(ctx context.Context, cfg Config) (exporters, error) {
	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	logOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		logOpts = append(logOpts, otlploghttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		traceOpts = append(traceOpts, otlptracehttp.WithHeaders(cfg.Headers))
		metricOpts = append(metricOpts, otlpmetrichttp.WithHeaders(cfg.Headers))
		logOpts = append(logOpts, otlploghttp.WithHeaders(cfg.Headers))
	}

	var (
		exp exporters
		err error
	)
	if exp.trace, err = otlptrace.New(ctx, otlptracehttp.NewClient(traceOpts...)); err != nil {
		return exporters{}, err
	}
	if exp.metric, err = otlpmetrichttp.New(ctx, metricOpts...); err != nil {
		return exporters{}, err
	}
	if exp.log, err = otlploghttp.New(ctx, logOpts...); err != nil {
		return exporters{}, err
	}
	return exp, nil
}
