package agent

import (
	"context"

	"github.com/signalsfoundry/satellite-agent/internal/logging"
	"github.com/signalsfoundry/satellite-agent/internal/ndk"
)

// listen sets up the configuration subscription and consumes the
// notification stream until ctx is cancelled. If the stream cannot be set up
// or breaks, the failure is logged and listen waits for shutdown so the
// loops keep running.
func (a *Agent) listen(ctx context.Context) {
	stream, err := a.openStream(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.recordErr(err)
			a.log.Error(ctx, "notification stream unavailable; configuration updates disabled", logging.Err(err))
		}
		<-ctx.Done()
		return
	}
	a.setState(StateStreaming)

	for {
		batch, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.recordErr(err)
			a.log.Error(ctx, "notification stream ended; configuration updates disabled", logging.Err(err))
			<-ctx.Done()
			return
		}
		for _, n := range batch {
			a.handleNotification(ctx, n)
		}
	}
}

func (a *Agent) openStream(ctx context.Context) (NotificationStream, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	streamID, err := a.plane.CreateStream(callCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.streamID = streamID
	a.mu.Unlock()
	a.log.Info(ctx, "notification stream created", logging.Uint64("stream_id", streamID))

	callCtx, cancel = context.WithTimeout(ctx, a.callTimeout)
	subID, err := a.plane.SubscribeConfig(callCtx, streamID)
	cancel()
	if err != nil {
		// Without the subscription the stream carries nothing useful, but
		// it is still opened so a later subscription from the host shows up.
		a.recordErr(err)
		a.log.Error(ctx, "config subscription failed", logging.Err(err), logging.Uint64("stream_id", streamID))
	} else {
		a.log.Info(ctx, "config subscription added",
			logging.Uint64("stream_id", streamID),
			logging.Uint64("sub_id", subID),
		)
	}

	return a.plane.Notifications(ctx, streamID)
}

// handleNotification applies config notifications and drops everything else.
func (a *Agent) handleNotification(ctx context.Context, n ndk.Notification) {
	a.metricsOrNop().ObserveNotification(n.Kind)
	if n.Kind != ndk.KindConfig {
		a.log.Info(ctx, "ignoring unexpected notification", logging.String("kind", n.Kind))
		return
	}

	log := a.log.With(logging.String("js_path", n.JsPath))
	d, ok := parseIntervalUpdate(n.JSON)
	if !ok {
		log.Debug(ctx, "config notification without usable interval; keeping current value",
			logging.String("payload", n.JSON),
			logging.String("interval", a.interval.Load().String()),
		)
		return
	}
	prev := a.interval.Load()
	a.interval.Store(d)
	a.publishInterval()
	log.Info(ctx, "poll interval updated",
		logging.String("from", prev.String()),
		logging.String("to", d.String()),
	)
}
