package pagepulse

import (
	"context"
	"time"

	"pagepulse/config"
	"pagepulse/internal/buffer"
	"pagepulse/model"
)

// Flush drains the buffers and dispatches one batch per channel. The
// unload reason selects the guaranteed (best-effort, outcome-unawaited)
// mode; everything else uses reliable delivery, whose failures requeue
// the batch for the next flush. No immediate re-attempt happens, so
// transport outages cannot turn into retry storms.
func (r *Recorder) Flush(reason FlushReason) {
	defer r.contain("flush")
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	r.deliver(r.config(), reason, reason == FlushUnload)
}

var channelOrder = []model.Channel{model.ChannelErrors, model.ChannelEvents, model.ChannelMetrics}

func (r *Recorder) deliver(cfg *config.Config, reason FlushReason, guaranteed bool) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	now := r.now().UTC()
	r.mu.Lock()
	drained := map[model.Channel][]model.Event{
		model.ChannelEvents:  r.events.DrainAll(),
		model.ChannelErrors:  r.errs.DrainAll(),
		model.ChannelMetrics: r.metrics.DrainAll(),
	}
	r.mu.Unlock()

	outcome := FlushOutcome{Time: now, Reason: reason}
	for _, ch := range channelOrder {
		events := drained[ch]
		if len(events) == 0 {
			continue
		}
		batch := r.makeBatch(cfg, events, now)
		if guaranteed {
			if r.transport.SendBestEffort(ch, batch) {
				outcome.Delivered += len(events)
				continue
			}
			// Not retried: the page is going away. The spool, when
			// enabled, keeps the batch for the next session instead.
			if r.spool != nil {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Flush.BestEffortTimeout)
				if err := r.spool.Save(ctx, ch, batch); err != nil && r.logger != nil {
					r.logger.Warn("spooling undelivered batch failed", "channel", string(ch), "err", err)
				}
				cancel()
			}
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Transport.Timeout)
		err := r.transport.SendReliable(ctx, ch, batch)
		cancel()
		if err != nil {
			r.mu.Lock()
			r.bufferFor(ch).Requeue(events)
			r.mu.Unlock()
			outcome.Requeued += len(events)
			outcome.Err = err.Error()
			if r.logger != nil {
				r.logger.Warn("flush failed, batch requeued", "channel", string(ch), "events", len(events), "err", err)
			}
			continue
		}
		outcome.Delivered += len(events)
	}

	r.mu.Lock()
	r.lastFlush = outcome
	r.mu.Unlock()
}

// dispatchAlertsLocked hands alerts to the transport outside the recorder
// lock. Alerts are never batched with events and never requeued: an
// undelivered alert is superseded by the next evaluation while the
// condition remains observable in the window.
func (r *Recorder) dispatchAlertsLocked(cfg *config.Config, alerts []model.Alert) {
	if len(alerts) == 0 {
		return
	}
	r.spawnLocked(func() {
		for _, alert := range alerts {
			batch := r.makeBatch(cfg, []model.Event{alert.AsEvent(cfg.Session.SessionID, cfg.Session.UserID)}, alert.Timestamp)
			if alert.Kind == model.AlertCriticalErrors {
				if !r.transport.SendBestEffort(model.ChannelErrors, batch) && r.logger != nil {
					r.logger.Warn("critical alert dispatch not accepted", "kind", string(alert.Kind))
				}
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Transport.Timeout)
			err := r.transport.SendReliable(ctx, model.ChannelErrors, batch)
			cancel()
			if err != nil && r.logger != nil {
				r.logger.Warn("alert dispatch failed", "kind", string(alert.Kind), "err", err)
			}
		}
	})
}

func (r *Recorder) makeBatch(cfg *config.Config, events []model.Event, flushTime time.Time) model.Batch {
	return model.Batch{
		SessionID: cfg.Session.SessionID,
		UserID:    cfg.Session.UserID,
		Events:    events,
		Metadata: model.BatchMetadata{
			FlushTime:   flushTime,
			EventCount:  len(events),
			Environment: cfg.Session.Environment,
		},
	}
}

func (r *Recorder) bufferFor(ch model.Channel) *buffer.Buffer {
	switch ch {
	case model.ChannelErrors:
		return r.errs
	case model.ChannelMetrics:
		return r.metrics
	default:
		return r.events
	}
}

func (r *Recorder) recoverSpooled(ctx context.Context) {
	pending, err := r.spool.LoadPending(ctx)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("spool recovery failed", "err", err)
		}
		return
	}
	recovered := 0
	for _, p := range pending {
		r.bufferFor(p.Channel).Requeue(p.Batch.Events)
		recovered += len(p.Batch.Events)
		if err := r.spool.Delete(ctx, p.ID); err != nil && r.logger != nil {
			r.logger.Warn("deleting recovered spool row failed", "id", p.ID, "err", err)
		}
	}
	if recovered > 0 && r.logger != nil {
		r.logger.Info("recovered spooled events", "events", recovered, "batches", len(pending))
	}
}
