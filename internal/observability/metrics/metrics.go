package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments. All Record methods are
// safe on a nil receiver so services can run without observability wired.
type Metrics struct {
	webhookEvents    metric.Int64Counter
	reconciles       metric.Int64Counter
	fulfillmentTasks metric.Int64Counter
	taskDuration     metric.Float64Histogram
	notifications    metric.Int64Counter
	creditTopups     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "eksporyuk"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("eksporyuk_webhook_events_total")
	if err != nil {
		return nil, err
	}
	reconciles, err := meter.Int64Counter("eksporyuk_reconcile_total")
	if err != nil {
		return nil, err
	}
	fulfillmentTasks, err := meter.Int64Counter("eksporyuk_fulfillment_tasks_total")
	if err != nil {
		return nil, err
	}
	taskDuration, err := meter.Float64Histogram("eksporyuk_fulfillment_task_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("eksporyuk_notifications_total")
	if err != nil {
		return nil, err
	}
	creditTopups, err := meter.Int64Counter("eksporyuk_credit_topups_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:    webhookEvents,
		reconciles:       reconciles,
		fulfillmentTasks: fulfillmentTasks,
		taskDuration:     taskDuration,
		notifications:    notifications,
		creditTopups:     creditTopups,
	}, nil
}

func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordReconcile(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.reconciles.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordFulfillmentTask(ctx context.Context, task, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("task", strings.TrimSpace(task)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.fulfillmentTasks.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.taskDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordNotification(ctx context.Context, channel, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.notifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordCreditTopup(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.creditTopups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// transaction and user ids are deliberately absent: they are unbounded.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":     {},
	"event_type":   {},
	"outcome":      {},
	"task":         {},
	"channel":      {},
	"product_type": {},
	"status_code":  {},
	"route":        {},
	"method":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
