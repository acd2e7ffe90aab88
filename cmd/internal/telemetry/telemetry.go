// Package telemetry sets up the process-wide OpenTelemetry meter provider.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const DefaultInterval = 15 * time.Second

type Config struct {
	ServiceName  string
	OTLPEndpoint string
	Insecure     bool
	Interval     time.Duration
}

// Init builds a meter provider, installs it globally and returns it so the
// caller can flush it on shutdown. With an OTLP endpoint, metrics are pushed
// over gRPC every Interval. Extra options (readers, views) are appended.
func Init(ctx context.Context, cfg Config, extra ...sdkmetric.Option) (*sdkmetric.MeterProvider, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	)
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		expOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			expOpts = append(expOpts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, expOpts...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}

		interval := cfg.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		))
		log.Infof("exporting metrics to %s every %s", cfg.OTLPEndpoint, interval)
	} else {
		log.Warn("OTEL_EXPORTER_OTLP_ENDPOINT not set, metrics are not exported")
	}

	mp := sdkmetric.NewMeterProvider(append(opts, extra...)...)
	otel.SetMeterProvider(mp)
	return mp, nil
}
