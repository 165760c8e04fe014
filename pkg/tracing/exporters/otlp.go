package exporters

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"

	defaultExportTimeout = 10 * time.Second
)

// OTLPConfig points the exporter at a collector
type OTLPConfig struct {
	// Endpoint is host:port, 4317 for grpc and 4318 for http by convention
	Endpoint string
	Protocol string
	// Insecure disables TLS
	Insecure bool
	Timeout  time.Duration
}

// DefaultOTLPConfig targets a local collector over plaintext grpc
func DefaultOTLPConfig() OTLPConfig {
	return OTLPConfig{
		Endpoint: "localhost:4317",
		Protocol: ProtocolGRPC,
		Insecure: true,
		Timeout:  defaultExportTimeout,
	}
}

// NewOTLPExporter creates an exporter for the configured protocol. No connection is made until
// the first batch is exported.
func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (*otlptrace.Exporter, error) {
	client, err := otlpClient(cfg)
	if err != nil {
		return nil, err
	}
	return otlptrace.New(ctx, client)
}

func otlpClient(cfg OTLPConfig) (otlptrace.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultExportTimeout
	}

	switch cfg.Protocol {
	case ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithTimeout(timeout)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.NewClient(opts...), nil
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithTimeout(timeout)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.NewClient(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q, expected %s or %s", cfg.Protocol, ProtocolGRPC, ProtocolHTTP)
	}
}
