// Package telemetry wires OpenTelemetry metrics, exported via
// Prometheus, to the runtime's own units of work: graph cycles, node
// updates, and broker traffic.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName = "timeflux"

	metricCycles         = "graph.cycles.total"
	metricCycleDuration  = "graph.cycle.duration"
	metricCycleOverruns  = "graph.cycle.overruns.total"
	metricNodeUpdates    = "node.updates.total"
	metricNodeDuration   = "node.update.duration"
	metricNodeFailures   = "node.updates.failure.total"
	metricBrokerMessages = "broker.messages.total"
	metricBrokerBytes    = "broker.bytes.total"
)

// Provider owns the meter/tracer and every instrument the runtime
// records against.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider trace.TracerProvider
	meter          metric.Meter
	tracer         trace.Tracer

	cycles         metric.Int64Counter
	cycleDuration  metric.Float64Histogram
	cycleOverruns  metric.Int64Counter
	nodeUpdates    metric.Int64Counter
	nodeDuration   metric.Float64Histogram
	nodeFailures   metric.Int64Counter
	brokerMessages metric.Int64Counter
	brokerBytes    metric.Int64Counter

	mu sync.RWMutex
}

type Config struct {
	ServiceVersion string
	Environment    string
	EnableTracing  bool
	EnableMetrics  bool
}

func DefaultConfig() Config {
	return Config{
		ServiceVersion: "0.1.0",
		Environment:    "development",
		EnableTracing:  true,
		EnableMetrics:  true,
	}
}

// NewProvider sets up metrics (Prometheus exporter) and tracing per cfg.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	if cfg.EnableMetrics {
		if err := p.initMetrics(res); err != nil {
			return nil, fmt.Errorf("telemetry: init metrics: %w", err)
		}
	}
	if cfg.EnableTracing {
		p.tracerProvider = otel.GetTracerProvider()
		p.tracer = p.tracerProvider.Tracer(serviceName)
	}
	return p, nil
}

func (p *Provider) initMetrics(res *resource.Resource) error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(serviceName)
	return p.createInstruments()
}

func (p *Provider) createInstruments() error {
	var err error
	if p.cycles, err = p.meter.Int64Counter(metricCycles, metric.WithDescription("Total number of graph cycles run")); err != nil {
		return err
	}
	if p.cycleDuration, err = p.meter.Float64Histogram(metricCycleDuration, metric.WithDescription("Cycle duration"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if p.cycleOverruns, err = p.meter.Int64Counter(metricCycleOverruns, metric.WithDescription("Cycles that exceeded their pacing budget")); err != nil {
		return err
	}
	if p.nodeUpdates, err = p.meter.Int64Counter(metricNodeUpdates, metric.WithDescription("Total number of node Update calls")); err != nil {
		return err
	}
	if p.nodeDuration, err = p.meter.Float64Histogram(metricNodeDuration, metric.WithDescription("Node Update duration"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if p.nodeFailures, err = p.meter.Int64Counter(metricNodeFailures, metric.WithDescription("Node Update calls that returned an error")); err != nil {
		return err
	}
	if p.brokerMessages, err = p.meter.Int64Counter(metricBrokerMessages, metric.WithDescription("Total broker messages relayed")); err != nil {
		return err
	}
	if p.brokerBytes, err = p.meter.Int64Counter(metricBrokerBytes, metric.WithDescription("Total broker payload bytes relayed")); err != nil {
		return err
	}
	return nil
}

func (p *Provider) Tracer() trace.Tracer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tracer
}

func (p *Provider) Meter() metric.Meter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meter
}

// RecordCycle records one graph cycle's outcome.
func (p *Provider) RecordCycle(ctx context.Context, graphID string, duration time.Duration, overran bool) {
	if p.meter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("graph.id", graphID))
	p.cycles.Add(ctx, 1, attrs)
	p.cycleDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if overran {
		p.cycleOverruns.Add(ctx, 1, attrs)
	}
}

// RecordNodeUpdate records one node's Update call outcome.
func (p *Provider) RecordNodeUpdate(ctx context.Context, graphID, nodeID string, duration time.Duration, err error) {
	if p.meter == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("graph.id", graphID),
		attribute.String("node.id", nodeID),
	)
	p.nodeUpdates.Add(ctx, 1, attrs)
	p.nodeDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		p.nodeFailures.Add(ctx, 1, attrs)
	}
}

// RecordBrokerRelay records one message relayed by a broker, by topic.
func (p *Provider) RecordBrokerRelay(ctx context.Context, topic string, bytes int) {
	if p.meter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("topic", topic))
	p.brokerMessages.Add(ctx, 1, attrs)
	p.brokerBytes.Add(ctx, int64(bytes), attrs)
}

func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
		}
	}
	return nil
}
