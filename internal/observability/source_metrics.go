package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SourceCollector exposes metrics about the upstream position source.
type SourceCollector struct {
	gatherer prometheus.Gatherer

	FetchDuration prometheus.Histogram
	FetchErrors   prometheus.Counter
	RecordAge     prometheus.Gauge
}

// NewSourceCollector registers source metrics against the provided registerer.
func NewSourceCollector(reg prometheus.Registerer) (*SourceCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	fetchHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satellite_source_fetch_duration_seconds",
		Help:    "Time taken to obtain one position record from the source.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
	fetchHistogram, err := registerHistogram(reg, fetchHistogram, "satellite_source_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}

	fetchErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satellite_source_fetch_errors_total",
		Help: "Cumulative number of failed source fetches.",
	})
	fetchErrors, err = registerCounter(reg, fetchErrors, "satellite_source_fetch_errors_total")
	if err != nil {
		return nil, err
	}

	recordAge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satellite_record_age_seconds",
		Help: "Difference between fetch time and the record's own timestamp.",
	})
	recordAge, err = registerGauge(reg, recordAge, "satellite_record_age_seconds")
	if err != nil {
		return nil, err
	}

	return &SourceCollector{
		gatherer:      gatherer,
		FetchDuration: fetchHistogram,
		FetchErrors:   fetchErrors,
		RecordAge:     recordAge,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SourceCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveFetch records one fetch attempt.
func (c *SourceCollector) ObserveFetch(d time.Duration, err error) {
	if c == nil {
		return
	}
	if c.FetchDuration != nil {
		c.FetchDuration.Observe(d.Seconds())
	}
	if err != nil && c.FetchErrors != nil {
		c.FetchErrors.Inc()
	}
}

// SetRecordAge updates the record age gauge. Negative ages, which happen
// with a skewed upstream clock, are reported as zero.
func (c *SourceCollector) SetRecordAge(age time.Duration) {
	if c == nil || c.RecordAge == nil {
		return
	}
	c.RecordAge.Set(max(age.Seconds(), 0))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
