package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitOTELDisabled(t *testing.T) {
	var console bytes.Buffer
	tracer, meter, log, shutdown, err := InitOTEL(Config{
		ServiceName: "alipay-bill",
		LogLevel:    "info",
		Console:     zapcore.AddSync(&console),
	})
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "bill.run")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	counter, err := meter.Int64Counter("bill.pairs.total")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	log.Infow("Download run completed", "date", "2026-10-18")
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, console.String(), "Download run completed")
}

func TestInitOTELExporterNoneIsDisabled(t *testing.T) {
	_, _, _, shutdown, err := InitOTEL(Config{Enabled: true, Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitOTELRejectsBadExporterSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"unknown exporter", Config{Enabled: true, Exporter: "zipkin"}, "unsupported exporter"},
		{"otlp without endpoint", Config{Enabled: true, Exporter: "otlp"}, "OTLP endpoint required"},
		{"bad protocol", Config{Enabled: true, Exporter: "otlp", Endpoint: "localhost:4317", Protocol: "udp"}, "invalid protocol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, _, err := InitOTEL(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInitOTELStdout(t *testing.T) {
	tracer, meter, log, shutdown, err := InitOTEL(Config{
		Enabled:     true,
		ServiceName: "alipay-bill",
		Exporter:    "stdout",
	})
	require.NoError(t, err)
	assert.NotNil(t, tracer)
	assert.NotNil(t, meter)
	assert.NotNil(t, log)
	assert.NoError(t, shutdown(context.Background()))
}
