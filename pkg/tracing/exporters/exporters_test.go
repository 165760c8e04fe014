package exporters

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTLPClientProtocols(t *testing.T) {
	for _, protocol := range []string{ProtocolGRPC, ProtocolHTTP} {
		t.Run(protocol, func(t *testing.T) {
			cfg := DefaultOTLPConfig()
			cfg.Protocol = protocol
			client, err := otlpClient(cfg)
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}

	_, err := otlpClient(OTLPConfig{Protocol: "udp"})
	assert.ErrorContains(t, err, `unsupported OTLP protocol "udp"`)
}

func TestLogExporter(t *testing.T) {
	exporter := &LogExporter{Logger: ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})}

	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	_, span := provider.Tracer("test").Start(context.Background(), "reconcile.insert")
	span.SetAttributes(attribute.String("catalog", "Loans"))
	span.End()
	require.NoError(t, provider.Shutdown(context.Background()))

	spans := tracetest.SpanStubs{{Name: "reconcile.update"}}.Snapshots()
	assert.NoError(t, exporter.ExportSpans(context.Background(), spans))
	assert.NoError(t, (&LogExporter{}).ExportSpans(context.Background(), spans))
}
