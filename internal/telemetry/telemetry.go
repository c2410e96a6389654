// Package telemetry builds the process's tracer and meter providers: a
// tracer/meter pair with a graceful-shutdown-once pattern and a stdout
// trace exporter, since this scope has no OTLP collector to export to (see
// DESIGN.md). The meter provider has no reader attached, so counter values
// are not exported anywhere.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider bundles the tracer, meter and named counters. cmd/twinctl
// builds one and shuts it down; no other package creates spans from the
// tracer or adds to the counters.
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider

	Counters *Counters

	shutdownOnce sync.Once
	mu           sync.RWMutex
	shutdown     bool
}

// Counters holds named instruments for immediate-reconciler and
// safety-engine outcomes. Nothing in this module adds to them; the
// immediate reconciler keeps its own in-process tallies (reconcile.Counters).
type Counters struct {
	Debounced        metric.Int64Counter
	SkippedUnhealthy metric.Int64Counter
	SkippedConverged metric.Int64Counter
	Sent             metric.Int64Counter
	SafetyRefused    metric.Int64Counter
	SafetyModified   metric.Int64Counter
}

// New builds a Provider for serviceName, exporting spans to stdout.
func New(serviceName string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name cannot be empty")
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	meter := mp.Meter(serviceName)
	counters, err := newCounters(meter)
	if err != nil {
		return nil, err
	}

	return &Provider{
		tracer:         tp.Tracer(serviceName),
		meter:          meter,
		traceProvider:  tp,
		metricProvider: mp,
		Counters:       counters,
	}, nil
}

func newCounters(meter metric.Meter) (*Counters, error) {
	debounced, err := meter.Int64Counter("reconcile.debounced")
	if err != nil {
		return nil, err
	}
	unhealthy, err := meter.Int64Counter("reconcile.skipped_unhealthy")
	if err != nil {
		return nil, err
	}
	converged, err := meter.Int64Counter("reconcile.skipped_converged")
	if err != nil {
		return nil, err
	}
	sent, err := meter.Int64Counter("reconcile.sent")
	if err != nil {
		return nil, err
	}
	refused, err := meter.Int64Counter("safety.refused")
	if err != nil {
		return nil, err
	}
	modified, err := meter.Int64Counter("safety.modified")
	if err != nil {
		return nil, err
	}
	return &Counters{
		Debounced:        debounced,
		SkippedUnhealthy: unhealthy,
		SkippedConverged: converged,
		Sent:             sent,
		SafetyRefused:    refused,
		SafetyModified:   modified,
	}, nil
}

// Tracer returns the provider's tracer for span creation.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes and stops the trace/metric providers exactly once.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.mu.Unlock()

		if tErr := p.traceProvider.Shutdown(ctx); tErr != nil {
			err = tErr
		}
		if mErr := p.metricProvider.Shutdown(ctx); mErr != nil && err == nil {
			err = mErr
		}
	})
	return err
}
