package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records submission meters through OpenTelemetry, exported on
// the default Prometheus registry next to the promauto collectors.
type Observability struct {
	meterProvider      *metric.MeterProvider
	submissionCounter  otelmetric.Int64Counter
	submissionDuration otelmetric.Float64Histogram
	uploadBytes        otelmetric.Int64Histogram
}

// New builds the meter provider. On exporter failure it returns a no-op
// Observability and the error.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	submissionCounter, _ := meter.Int64Counter(
		"submissions.processed",
		otelmetric.WithDescription("Number of form submissions processed"),
	)

	submissionDuration, _ := meter.Float64Histogram(
		"submissions.duration",
		otelmetric.WithDescription("Submission processing duration"),
		otelmetric.WithUnit("ms"),
	)

	uploadBytes, _ := meter.Int64Histogram(
		"submissions.upload_size",
		otelmetric.WithDescription("Size of persisted uploads"),
		otelmetric.WithUnit("By"),
	)

	return &Observability{
		meterProvider:      provider,
		submissionCounter:  submissionCounter,
		submissionDuration: submissionDuration,
		uploadBytes:        uploadBytes,
	}, nil
}

func (o *Observability) RecordSubmission(ctx context.Context, form, outcome string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("form", form),
		attribute.String("outcome", outcome),
	)
	if o.submissionCounter != nil {
		o.submissionCounter.Add(ctx, 1, attrs)
	}
	if o.submissionDuration != nil {
		o.submissionDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordUpload(ctx context.Context, form, field string, size int64) {
	if o == nil || o.uploadBytes == nil {
		return
	}
	o.uploadBytes.Record(ctx, size, otelmetric.WithAttributes(
		attribute.String("form", form),
		attribute.String("field", field),
	))
}

func (o *Observability) Shutdown() {
	if o != nil && o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.meterProvider.Shutdown(ctx)
	}
}
