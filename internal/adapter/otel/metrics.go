package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "spendsight"

// Metrics holds all SpendSight metric instruments.
type Metrics struct {
	Collections            metric.Int64Counter
	CollectionFailures     metric.Int64Counter
	RecordsSaved           metric.Int64Counter
	AnomaliesDetected      metric.Int64Counter
	RecommendationsCreated metric.Int64Counter
	CollectionDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Collections, err = meter.Int64Counter("spendsight.collections",
		metric.WithDescription("Number of collection runs"))
	if err != nil {
		return nil, err
	}

	m.CollectionFailures, err = meter.Int64Counter("spendsight.collections.failed",
		metric.WithDescription("Number of failed collection runs"))
	if err != nil {
		return nil, err
	}

	m.RecordsSaved, err = meter.Int64Counter("spendsight.records.saved",
		metric.WithDescription("Number of cost line items saved"))
	if err != nil {
		return nil, err
	}

	m.AnomaliesDetected, err = meter.Int64Counter("spendsight.anomalies.detected",
		metric.WithDescription("Number of anomalies detected"))
	if err != nil {
		return nil, err
	}

	m.RecommendationsCreated, err = meter.Int64Counter("spendsight.recommendations.created",
		metric.WithDescription("Number of recommendations created"))
	if err != nil {
		return nil, err
	}

	m.CollectionDuration, err = meter.Float64Histogram("spendsight.collection.duration_seconds",
		metric.WithDescription("Collection run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
