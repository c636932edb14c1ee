package otel

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docapi/internal/logger"
)

func lastLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestInit_Disabled(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "true")
	var buf bytes.Buffer

	shutdown, err := Init(context.Background(), logger.New(&buf, time.UTC))

	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	entry := lastLogLine(t, &buf)
	assert.Equal(t, "tracing_configured", entry["msg"])
	assert.Equal(t, false, entry["tracing_enabled"])
}

func TestInit_UnsupportedProtocolDegrades(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "false")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "carrier-pigeon")
	var buf bytes.Buffer

	shutdown, err := Init(context.Background(), logger.New(&buf, time.UTC))

	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	entry := lastLogLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "tracing_init_failed", entry["msg"])
	assert.Contains(t, entry["error"], "carrier-pigeon")
}

func TestSettingsFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, k := range []string{"OTEL_SDK_DISABLED", "OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_PROTOCOL",
			"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACES_SAMPLER", "OTEL_TRACES_SAMPLER_ARG"} {
			t.Setenv(k, "")
		}

		s := SettingsFromEnv()

		assert.False(t, s.Disabled)
		assert.Equal(t, "docapi", s.ServiceName)
		assert.Equal(t, "grpc", s.Protocol)
		assert.Equal(t, "parentbased_always_on", s.Sampler)
		assert.Equal(t, "1.0", s.SamplerArg)
	})

	t.Run("traces endpoint wins over the generic one", func(t *testing.T) {
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")
		t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "http://traces:4317")

		assert.Equal(t, "http://traces:4317", SettingsFromEnv().Endpoint)

		t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")
		assert.Equal(t, "http://collector:4317", SettingsFromEnv().Endpoint)
	})
}

func TestSettingsSampler(t *testing.T) {
	tests := []struct {
		sampler string
		arg     string
		want    string
	}{
		{"always_on", "", "AlwaysOnSampler"},
		{"always_off", "", "AlwaysOffSampler"},
		{"traceidratio", "0.25", "TraceIDRatioBased{0.25}"},
		{"parentbased_always_off", "", "ParentBased{root:AlwaysOffSampler"},
		{"parentbased_traceidratio", "0.5", "ParentBased{root:TraceIDRatioBased{0.5}"},
		{"unknown", "", "ParentBased{root:AlwaysOnSampler"},
	}
	for _, tt := range tests {
		t.Run(tt.sampler, func(t *testing.T) {
			s := Settings{Sampler: tt.sampler, SamplerArg: tt.arg}
			assert.Contains(t, s.sampler().Description(), tt.want)
		})
	}
}

func TestParseRatio(t *testing.T) {
	assert.Equal(t, 0.1, parseRatio("0.1"))
	assert.Equal(t, 1.0, parseRatio(""))
	assert.Equal(t, 1.0, parseRatio("abc"))
	assert.Equal(t, 1.0, parseRatio("2"))
	assert.Equal(t, 0.0, parseRatio("0"))
}
