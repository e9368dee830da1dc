package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Poll cycle outcomes recorded in satellite_poll_cycles_total.
const (
	ResultOK           = "ok"
	ResultFetchError   = "fetch_error"
	ResultEncodeError  = "encode_error"
	ResultPublishError = "publish_error"
	ResultError        = "error"
)

// AgentCollector bundles Prometheus metrics for the satellite agent and
// provides helpers to wire them into gRPC clients and HTTP handlers.
type AgentCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	PollCycles    *prometheus.CounterVec
	Publishes     *prometheus.CounterVec
	KeepAlives    *prometheus.CounterVec
	Notifications *prometheus.CounterVec

	PollInterval prometheus.Gauge
	Position     *prometheus.GaugeVec
	Altitude     prometheus.Gauge
	LastPublish  prometheus.Gauge
}

// NewAgentCollector registers the agent metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewAgentCollector(reg prometheus.Registerer) (*AgentCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ndk_requests_total",
		Help: "Total number of NDK RPCs issued, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "ndk_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ndk_request_duration_seconds",
		Help:    "NDK RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"service", "method"}), "ndk_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	polls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satellite_poll_cycles_total",
		Help: "Poll/publish cycles, labeled by outcome.",
	}, []string{"result"}), "satellite_poll_cycles_total")
	if err != nil {
		return nil, err
	}

	publishes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satellite_publish_total",
		Help: "Telemetry updates pushed to the state datastore, labeled by outcome.",
	}, []string{"result"}), "satellite_publish_total")
	if err != nil {
		return nil, err
	}

	keepAlives, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satellite_keepalive_total",
		Help: "Keep-alives sent to the SDK manager, labeled by outcome.",
	}, []string{"result"}), "satellite_keepalive_total")
	if err != nil {
		return nil, err
	}

	notifications, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satellite_notifications_total",
		Help: "Notifications received on the NDK stream, labeled by kind.",
	}, []string{"kind"}), "satellite_notifications_total")
	if err != nil {
		return nil, err
	}

	interval, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satellite_poll_interval_seconds",
		Help: "Current poll interval.",
	}), "satellite_poll_interval_seconds")
	if err != nil {
		return nil, err
	}

	position, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "satellite_position_degrees",
		Help: "Last published sub-satellite point, labeled by axis.",
	}, []string{"axis"}), "satellite_position_degrees")
	if err != nil {
		return nil, err
	}

	altitude, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satellite_altitude_km",
		Help: "Last published altitude.",
	}), "satellite_altitude_km")
	if err != nil {
		return nil, err
	}

	lastPublish, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satellite_last_publish_timestamp_seconds",
		Help: "Unix time of the last successful telemetry update.",
	}), "satellite_last_publish_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	return &AgentCollector{
		gatherer:      gatherer,
		RPCRequests:   requests,
		RPCDurations:  durations,
		PollCycles:    polls,
		Publishes:     publishes,
		KeepAlives:    keepAlives,
		Notifications: notifications,
		PollInterval:  interval,
		Position:      position,
		Altitude:      altitude,
		LastPublish:   lastPublish,
	}, nil
}

// UnaryClientInterceptor records request counts and durations for unary RPCs
// issued to the SDK manager.
func (c *AgentCollector) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, fullMethod string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, fullMethod, req, reply, cc, opts...)

		if c == nil {
			return err
		}

		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}
		return err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *AgentCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObservePoll counts one poll cycle with the given outcome.
func (c *AgentCollector) ObservePoll(result string) {
	if c == nil || c.PollCycles == nil {
		return
	}
	c.PollCycles.WithLabelValues(result).Inc()
}

// ObservePublish counts one telemetry update.
func (c *AgentCollector) ObservePublish(err error) {
	if c == nil || c.Publishes == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	c.Publishes.WithLabelValues(result).Inc()
}

// ObserveKeepAlive counts one keep-alive.
func (c *AgentCollector) ObserveKeepAlive(err error) {
	if c == nil || c.KeepAlives == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	c.KeepAlives.WithLabelValues(result).Inc()
}

// ObserveNotification counts one received notification.
func (c *AgentCollector) ObserveNotification(kind string) {
	if c == nil || c.Notifications == nil {
		return
	}
	c.Notifications.WithLabelValues(kind).Inc()
}

// SetPollInterval satisfies the agent's metrics recorder so interval changes
// are visible as they happen.
func (c *AgentCollector) SetPollInterval(d time.Duration) {
	if c == nil || c.PollInterval == nil {
		return
	}
	c.PollInterval.Set(d.Seconds())
}

// SetPosition records the last published position.
func (c *AgentCollector) SetPosition(lat, lon, altitude float64, published time.Time) {
	if c == nil {
		return
	}
	if c.Position != nil {
		c.Position.WithLabelValues("latitude").Set(lat)
		c.Position.WithLabelValues("longitude").Set(lon)
	}
	if c.Altitude != nil {
		c.Altitude.Set(altitude)
	}
	if c.LastPublish != nil {
		c.LastPublish.Set(float64(published.Unix()))
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
