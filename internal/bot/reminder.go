package bot

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/susu3304/warikanbot/internal/metrics"
	"github.com/susu3304/warikanbot/internal/warikan"
)

const (
	reminderFooter  = "\n\n※このメッセージは自動投稿です"
	reminderBackoff = 2 * time.Minute
)

// reminderWorker periodically posts unpaid settlement tasks to channels.
type reminderWorker struct {
	svc      *warikan.Service
	session  reminderSession
	metrics  *metrics.Recorder
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

// Minimal session interface for sending channel messages.
type reminderSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func newReminderWorker(session reminderSession, svc *warikan.Service, rec *metrics.Recorder, logger *zap.Logger, interval time.Duration) *reminderWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &reminderWorker{
		svc:      svc,
		session:  session,
		metrics:  rec,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (w *reminderWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *reminderWorker) tick(ctx context.Context) {
	now := w.now()
	targets, err := w.svc.DueReminders(ctx, now)
	if err != nil {
		w.logger.Warn("reminder: failed to load due reminders", zap.Error(err))
		return
	}

	for _, t := range targets {
		log := w.logger.With(zap.String("group_id", t.GroupID), zap.String("channel_id", t.ChannelID))
		if t.ChannelID == "" {
			log.Debug("reminder: group has no channel")
			continue
		}
		msg, err := w.svc.ReminderMessage(ctx, t.GroupID)
		if err != nil {
			log.Warn("reminder: failed to build message", zap.Error(err))
			continue
		}
		if msg == "" {
			// Everything is paid; nothing left to remind about.
			if err := w.svc.SetReminder(ctx, t.GroupID, false, t.Interval); err != nil {
				log.Warn("reminder: failed to disable reminder", zap.Error(err))
			}
			continue
		}
		if err := w.sendWithRetry(ctx, t.ChannelID, msg+reminderFooter); err != nil {
			w.metrics.ObserveReminder(metrics.ResultError)
			log.Warn("reminder: failed to send message", zap.Error(err))
			backoff := reminderBackoff
			if t.Interval > 0 && backoff > t.Interval {
				backoff = t.Interval
			}
			if derr := w.svc.DelayReminder(ctx, t.GroupID, now.Add(backoff)); derr != nil {
				log.Warn("reminder: failed to delay reminder", zap.Error(derr))
			}
			continue
		}
		w.metrics.ObserveReminder(metrics.ResultSuccess)
		if err := w.svc.MarkReminderSent(ctx, t.GroupID, now, now.Add(t.Interval)); err != nil {
			log.Warn("reminder: failed to mark reminder sent", zap.Error(err))
		}
	}
}

func (w *reminderWorker) sendWithRetry(ctx context.Context, channelID, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := w.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTimeout(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(300+rand.Intn(500)) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
