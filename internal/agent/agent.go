// Package agent runs the satellite telemetry agent: registration with the
// SDK manager, the keep-alive and poll loops, and the configuration
// notification listener.
package agent

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/satellite-agent/internal/clock"
	"github.com/signalsfoundry/satellite-agent/internal/logging"
	"github.com/signalsfoundry/satellite-agent/internal/ndk"
	"github.com/signalsfoundry/satellite-agent/internal/observability"
	"github.com/signalsfoundry/satellite-agent/internal/satellite"
)

const (
	// KeepAliveInterval is fixed; the SDK manager is told the same period
	// at registration.
	KeepAliveInterval = ndk.AgentLiveliness * time.Second
	// DefaultJsPath is the state datastore path the record is written to.
	DefaultJsPath = ".satellite"

	defaultCallTimeout       = 10 * time.Second
	defaultUnregisterTimeout = 5 * time.Second
)

// State is the agent lifecycle state.
type State int32

const (
	StateUnregistered State = iota
	StateRegistered
	StateStreaming
	StateUnregistering
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateStreaming:
		return "streaming"
	case StateUnregistering:
		return "unregistering"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// NotificationStream yields batches of notifications until its context ends.
type NotificationStream interface {
	Recv() ([]ndk.Notification, error)
}

// ControlPlane is the subset of the SDK manager the agent drives.
type ControlPlane interface {
	Register(ctx context.Context) (uint32, error)
	Unregister(ctx context.Context) error
	KeepAlive(ctx context.Context) error
	CreateStream(ctx context.Context) (uint64, error)
	SubscribeConfig(ctx context.Context, streamID uint64) (uint64, error)
	Notifications(ctx context.Context, streamID uint64) (NotificationStream, error)
	UpdateTelemetry(ctx context.Context, jsPath, jsonContent string) error
}

// FromNDK adapts an NDK client to ControlPlane.
func FromNDK(c *ndk.Client) ControlPlane {
	return ndkPlane{Client: c}
}

type ndkPlane struct {
	*ndk.Client
}

func (p ndkPlane) Notifications(ctx context.Context, streamID uint64) (NotificationStream, error) {
	s, err := p.Client.Notifications(ctx, streamID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// MetricsRecorder receives agent-level measurements.
type MetricsRecorder interface {
	ObservePoll(result string)
	ObservePublish(err error)
	ObserveKeepAlive(err error)
	ObserveNotification(kind string)
	SetPollInterval(d time.Duration)
	SetPosition(lat, lon, altitude float64, published time.Time)
}

// SourceMetricsRecorder receives measurements about the position source.
type SourceMetricsRecorder interface {
	ObserveFetch(d time.Duration, err error)
	SetRecordAge(age time.Duration)
}

// Agent owns the lifecycle of one telemetry agent process.
type Agent struct {
	plane    ControlPlane
	source   satellite.Source
	interval *IntervalCell
	mirror   *Mirror

	clock             clock.Clock
	log               logging.Logger
	tracer            trace.Tracer
	metrics           MetricsRecorder
	sourceMetrics     SourceMetricsRecorder
	jsPath            string
	callTimeout       time.Duration
	unregisterTimeout time.Duration

	mu       sync.Mutex
	state    State
	appID    uint32
	streamID uint64
	cycles   uint64
	lastErr  error

	unregisterOnce sync.Once
}

// Option customises Agent construction.
type Option func(*Agent)

// WithClock replaces the wall clock used by the loops.
func WithClock(c clock.Clock) Option {
	return func(a *Agent) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// WithTracer sets the tracer used for per-cycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Agent) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithMetricsRecorder attaches an optional agent metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// WithSourceMetricsRecorder attaches an optional source metrics recorder.
func WithSourceMetricsRecorder(m SourceMetricsRecorder) Option {
	return func(a *Agent) {
		a.sourceMetrics = m
	}
}

// WithInterval sets the initial poll interval.
func WithInterval(d time.Duration) Option {
	return func(a *Agent) {
		a.interval.Store(d)
	}
}

// WithMirror shares a Mirror with the caller, typically to serve it over
// HTTP.
func WithMirror(m *Mirror) Option {
	return func(a *Agent) {
		if m != nil {
			a.mirror = m
		}
	}
}

// WithJsPath overrides the state datastore path.
func WithJsPath(p string) Option {
	return func(a *Agent) {
		if p != "" {
			a.jsPath = p
		}
	}
}

// WithCallTimeout bounds each fetch, publish and keep-alive.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// WithUnregisterTimeout bounds the unregister call made during shutdown.
func WithUnregisterTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.unregisterTimeout = d
		}
	}
}

// New builds an Agent that publishes records from source through plane.
func New(plane ControlPlane, source satellite.Source, opts ...Option) *Agent {
	a := &Agent{
		plane:             plane,
		source:            source,
		interval:          NewIntervalCell(DefaultInterval),
		mirror:            NewMirror(),
		clock:             clock.Real(),
		log:               logging.Noop(),
		tracer:            observability.Tracer(),
		jsPath:            DefaultJsPath,
		callTimeout:       defaultCallTimeout,
		unregisterTimeout: defaultUnregisterTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.log = a.log.With(logging.String("component", "agent"), logging.String("source", source.Name()))
	return a
}

// Interval exposes the shared poll interval cell.
func (a *Agent) Interval() *IntervalCell { return a.interval }

// Mirror returns the last-published record store.
func (a *Agent) Mirror() *Mirror { return a.mirror }

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	prev := a.state
	a.state = s
	a.mu.Unlock()
	if prev != s {
		a.log.Debug(context.Background(), "agent state changed",
			logging.String("from", prev.String()),
			logging.String("to", s.String()),
		)
	}
}

// Run registers the agent, starts the keep-alive and poll loops and listens
// for configuration notifications until ctx is cancelled. On cancellation it
// unregisters once, waits for both loops to finish their current iteration
// and returns.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info(ctx, "agent starting",
		logging.String("js_path", a.jsPath),
		logging.String("interval", a.interval.Load().String()),
	)
	a.publishInterval()
	a.register(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.keepAliveLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.pollLoop(ctx)
	}()

	a.listen(ctx)
	a.unregister(ctx)
	wg.Wait()

	a.setState(StateTerminated)
	a.log.Info(ctx, "agent stopped")
	return nil
}

// register is best-effort: a failure is logged and the agent keeps going.
func (a *Agent) register(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	appID, err := a.plane.Register(callCtx)
	if err != nil {
		a.recordErr(err)
		a.log.Error(ctx, "agent registration failed; continuing unregistered", logging.Err(err))
		return
	}
	a.mu.Lock()
	a.appID = appID
	a.mu.Unlock()
	a.setState(StateRegistered)
	a.log.Info(ctx, "agent registered", logging.Uint64("app_id", uint64(appID)))
}

// unregister issues exactly one AgentUnRegister on a context detached from
// the cancelled one.
func (a *Agent) unregister(ctx context.Context) {
	a.unregisterOnce.Do(func() {
		a.setState(StateUnregistering)
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.unregisterTimeout)
		defer cancel()

		if err := a.plane.Unregister(callCtx); err != nil {
			a.recordErr(err)
			a.log.Error(callCtx, "agent unregister failed", logging.Err(err))
			return
		}
		a.log.Info(callCtx, "agent unregistered")
	})
}

func (a *Agent) keepAliveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.callTimeout)
		err := a.plane.KeepAlive(callCtx)
		cancel()
		a.metricsOrNop().ObserveKeepAlive(err)
		if err != nil {
			a.recordErr(err)
			a.log.Warn(ctx, "keep alive failed", logging.Err(err))
		} else {
			a.log.Debug(ctx, "keep alive sent")
		}

		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(KeepAliveInterval):
		}
	}
}

func (a *Agent) pollLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		a.pollOnce(ctx)

		// The interval is read once per sleep, so a change made while
		// sleeping applies to the following cycle.
		wait := a.interval.Load()
		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(wait):
		}
	}
}

// pollOnce runs one fetch/encode/publish cycle. The cycle runs to completion
// even if ctx is cancelled while it is in flight.
func (a *Agent) pollOnce(ctx context.Context) {
	a.mu.Lock()
	a.cycles++
	a.mu.Unlock()

	cycleCtx, log := logging.WithCycleLogger(ctx, a.log)
	cycleCtx, span := a.tracer.Start(cycleCtx, "satellite.poll",
		trace.WithAttributes(
			attribute.String("satellite.source", a.source.Name()),
			attribute.String("ndk.js_path", a.jsPath),
		),
	)
	defer span.End()

	workCtx, cancel := context.WithTimeout(context.WithoutCancel(cycleCtx), a.callTimeout)
	defer cancel()

	metrics := a.metricsOrNop()
	start := time.Now()
	rec, err := a.source.Fetch(workCtx)
	a.sourceMetricsOrNop().ObserveFetch(time.Since(start), err)
	if err != nil {
		a.failCycle(cycleCtx, log, span, observability.ResultFetchError, "fetch satellite record failed", err)
		return
	}
	now := a.clock.Now()
	a.sourceMetricsOrNop().SetRecordAge(now.Sub(time.Unix(rec.Timestamp, 0)))

	payload, err := rec.TelemetryJSON()
	if err != nil {
		a.failCycle(cycleCtx, log, span, observability.ResultEncodeError, "encode satellite record failed", err)
		return
	}

	err = a.plane.UpdateTelemetry(workCtx, a.jsPath, payload)
	metrics.ObservePublish(err)
	if err != nil {
		a.failCycle(cycleCtx, log, span, observability.ResultPublishError, "telemetry update failed", err)
		return
	}

	a.mirror.Store(rec, now)
	metrics.ObservePoll(observability.ResultOK)
	metrics.SetPosition(rec.Latitude, rec.Longitude, rec.Altitude, now)
	span.SetAttributes(
		attribute.Float64("satellite.latitude", rec.Latitude),
		attribute.Float64("satellite.longitude", rec.Longitude),
	)
	log.Info(cycleCtx, "satellite telemetry published",
		logging.String("name", rec.Name),
		logging.Float64("latitude", rec.Latitude),
		logging.Float64("longitude", rec.Longitude),
		logging.Float64("altitude", rec.Altitude),
		logging.String("visibility", rec.Visibility),
	)
}

func (a *Agent) failCycle(ctx context.Context, log logging.Logger, span trace.Span, result, msg string, err error) {
	a.recordErr(err)
	a.metricsOrNop().ObservePoll(result)
	span.RecordError(err)
	span.SetStatus(codes.Error, result)
	log.Warn(ctx, msg, logging.Err(err))
}

func (a *Agent) recordErr(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}

func (a *Agent) publishInterval() {
	a.metricsOrNop().SetPollInterval(a.interval.Load())
}

func (a *Agent) metricsOrNop() MetricsRecorder {
	if a.metrics == nil {
		return nopMetrics{}
	}
	return a.metrics
}

func (a *Agent) sourceMetricsOrNop() SourceMetricsRecorder {
	if a.sourceMetrics == nil {
		return nopMetrics{}
	}
	return a.sourceMetrics
}

type nopMetrics struct{}

func (nopMetrics) ObservePoll(string)                               {}
func (nopMetrics) ObservePublish(error)                             {}
func (nopMetrics) ObserveKeepAlive(error)                           {}
func (nopMetrics) ObserveNotification(string)                       {}
func (nopMetrics) SetPollInterval(time.Duration)                    {}
func (nopMetrics) SetPosition(float64, float64, float64, time.Time) {}
func (nopMetrics) ObserveFetch(time.Duration, error)                {}
func (nopMetrics) SetRecordAge(time.Duration)                       {}
