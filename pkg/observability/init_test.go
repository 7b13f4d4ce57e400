package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/ordmap/pkg/observability"
)

func mustInit(t *testing.T, cfg observability.Config) observability.Providers {
	t.Helper()

	providers, err := observability.Init(context.Background(), cfg)
	require.NoError(t, err)

	return providers
}

func TestInit_WithoutEndpointSpansAreNoop(t *testing.T) {
	t.Parallel()

	providers := mustInit(t, observability.DefaultConfig())

	require.NotNil(t, providers.Meter)

	_, span := providers.Tracer.Start(context.Background(), "workload")
	span.End()

	assert.False(t, span.SpanContext().IsValid())

	require.NoError(t, providers.Shutdown(context.Background()))
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_JSONLoggerCarriesServiceAndMode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.Service.Mode = observability.ModeBench
	cfg.Logging.JSON = true
	cfg.Logging.Output = &buf

	providers := mustInit(t, cfg)
	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	providers.Logger.InfoContext(context.Background(), "run finished", "keys", 10)

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "run finished", record["msg"])
	assert.Equal(t, "ordmap", record["service"])
	assert.Equal(t, "bench", record["mode"])
	assert.InDelta(t, 10, record["keys"], 0)
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.Logging.Output = &buf

	logger := observability.NewLogger(cfg)
	logger.Debug("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "mode=cli")
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"empty", "", nil},
		{"single", "authorization=Bearer x", map[string]string{"authorization": "Bearer x"}},
		{"multiple", "tenant=ordmap,env=ci", map[string]string{"tenant": "ordmap", "env": "ci"}},
		{"trimmed", " tenant = ordmap , env = ci ", map[string]string{"tenant": "ordmap", "env": "ci"}},
		{"no separator", "tenant", nil},
		{"empty name", "=value", nil},
		{"value keeps equals", "sig=a=b", map[string]string{"sig": "a=b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, observability.ParseOTLPHeaders(tt.input))
		})
	}
}

func TestServiceResource(t *testing.T) {
	t.Parallel()

	res, err := observability.ServiceResource(observability.Service{
		Name:    "ordmap",
		Version: "1.2.3",
		Mode:    observability.ModeCheck,
	})
	require.NoError(t, err)

	values := make(map[string]string)
	for _, attr := range res.Attributes() {
		values[string(attr.Key)] = attr.Value.Emit()
	}

	assert.Equal(t, "check", values["app.mode"])
	assert.Equal(t, "ordmap", values["service.name"])
	assert.Equal(t, "1.2.3", values["service.version"])
	assert.Equal(t, "go", values["telemetry.sdk.language"])
}

func TestSampling_Ratio(t *testing.T) {
	t.Setenv("OTEL_TRACES_SAMPLER", "")

	assert.True(t, observability.RootSpanRecorded(observability.DefaultConfig().Sampling))
	assert.True(t, observability.RootSpanRecorded(observability.Sampling{Ratio: 1}))
	assert.False(t, observability.RootSpanRecorded(observability.Sampling{Ratio: 0}))
}

func TestSampling_EnvSamplerWinsOverRatio(t *testing.T) {
	t.Setenv("OTEL_TRACES_SAMPLER", "always_off")

	assert.False(t, observability.RootSpanRecorded(observability.Sampling{Ratio: 1}))
}

func TestSampling_EnvParentBasedRatio(t *testing.T) {
	t.Setenv("OTEL_TRACES_SAMPLER", "parentbased_traceidratio")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "1.0")

	assert.True(t, observability.RootSpanRecorded(observability.Sampling{Ratio: 0}))
}

func TestSampling_DebugOverridesEnvAndRatio(t *testing.T) {
	t.Setenv("OTEL_TRACES_SAMPLER", "always_off")

	assert.True(t, observability.RootSpanRecorded(observability.Sampling{Debug: true, Ratio: 0}))
}
