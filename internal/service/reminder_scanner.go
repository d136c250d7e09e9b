package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/reminder"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/entitlement"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/lock"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/notify"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ScannerOptions struct {
	BatchSize  int
	ClaimLease time.Duration
	LockKey    string
	LockTTL    time.Duration
	SubjectTag string
}

// RunResult summarizes one sweep. Contended is set when another run held
// the lock and nothing was scanned.
type RunResult struct {
	Scanned   int  `json:"scanned"`
	Sent      int  `json:"sent"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Contended bool `json:"contended"`
}

// ReminderScanner sends due reminders. Delivery is at least once: a failed
// send leaves the reminder unnotified for the next sweep.
type ReminderScanner struct {
	reminders reminder.Repository
	notifier  notify.Notifier
	locker    lock.Locker
	metrics   *metrics.Collector
	log       *zap.Logger
	opts      ScannerOptions
}

// NewReminderScanner wires the scanner. m may be nil.
func NewReminderScanner(reminders reminder.Repository, notifier notify.Notifier, locker lock.Locker, m *metrics.Collector, log *zap.Logger, opts ScannerOptions) *ReminderScanner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = 5 * time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if opts.LockKey == "" {
		opts.LockKey = "medvault:reminder-scanner"
	}
	return &ReminderScanner{
		reminders: reminders,
		notifier:  notifier,
		locker:    locker,
		metrics:   m,
		log:       log,
		opts:      opts,
	}
}

func (s *ReminderScanner) Run(ctx context.Context, now time.Time) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "ReminderScanner.Run")
	defer span.End()
	started := time.Now()

	var res RunResult
	lease, ok, err := s.locker.TryLock(ctx, s.opts.LockKey, s.opts.LockTTL)
	if err != nil {
		return res, fmt.Errorf("acquiring scanner lock: %w", err)
	}
	if !ok {
		s.log.Info("reminder scan already running elsewhere, skipping")
		res.Contended = true
		return res, nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release scanner lock", zap.Error(err))
		}
	}()

	var cursor *reminder.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch, err := s.reminders.ListDue(ctx, now, cursor, s.opts.BatchSize)
		if err != nil {
			return res, err
		}
		for _, rem := range batch {
			res.Scanned++
			switch s.process(ctx, rem, now) {
			case "sent":
				res.Sent++
			case "failed":
				res.Failed++
			default:
				res.Skipped++
			}
		}
		if len(batch) < s.opts.BatchSize {
			break
		}
		c := batch[len(batch)-1].Cursor()
		cursor = &c
	}

	span.SetAttributes(
		attribute.Int("scanned", res.Scanned),
		attribute.Int("sent", res.Sent),
		attribute.Int("failed", res.Failed),
	)
	if s.metrics != nil {
		s.metrics.ReminderRunDuration.Observe(time.Since(started).Seconds())
	}
	s.log.Info("reminder scan finished",
		zap.Int("scanned", res.Scanned),
		zap.Int("sent", res.Sent),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(started)),
	)
	return res, nil
}

// process handles one due reminder and returns its outcome label.
func (s *ReminderScanner) process(ctx context.Context, rem *reminder.Reminder, now time.Time) (outcome string) {
	defer func() {
		if s.metrics != nil {
			s.metrics.RemindersProcessed.WithLabelValues(outcome).Inc()
		}
	}()
	log := s.log.With(zap.String("reminder_id", rem.ID.String()))

	recipient := rem.Recipient()
	if recipient == nil {
		log.Info("reminder has no recipient, skipping")
		return "skipped"
	}
	if rem.Doctor != nil && rem.Patient != nil {
		log.Info("reminder addressed to both doctor and patient, sending to doctor")
	}
	if recipient.Email == "" {
		log.Info("recipient has no email, skipping", zap.String("user_id", recipient.ID.String()))
		return "skipped"
	}
	if !entitlement.Effective(recipient, entitlement.FeatureSetReminders) {
		log.Info("recipient no longer entitled to reminders, skipping", zap.String("user_id", recipient.ID.String()))
		return "skipped"
	}

	claimed, err := s.reminders.Claim(ctx, rem.ID, now, s.opts.ClaimLease)
	if err != nil {
		log.Error("failed to claim reminder", zap.Error(err))
		return "failed"
	}
	if !claimed {
		return "skipped"
	}

	if err := s.notifier.Send(ctx, composeReminder(rem, recipient, s.opts.SubjectTag)); err != nil {
		log.Error("failed to send reminder", zap.Error(err))
		if rerr := s.reminders.Release(context.WithoutCancel(ctx), rem.ID); rerr != nil {
			log.Warn("failed to release reminder claim", zap.Error(rerr))
		}
		return "failed"
	}

	if err := s.reminders.MarkNotified(context.WithoutCancel(ctx), rem.ID); err != nil {
		// The mail went out; the lease keeps it from resending until it lapses.
		log.Error("reminder sent but not marked notified", zap.Error(err))
	}
	return "sent"
}

// RunEvery sweeps immediately and then on every tick until ctx is done.
func (s *ReminderScanner) RunEvery(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		if _, err := s.Run(runCtx, time.Now()); err != nil && ctx.Err() == nil {
			s.log.Error("reminder scan failed", zap.Error(err))
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func composeReminder(rem *reminder.Reminder, to *domain.User, tag string) notify.Message {
	subject := "Reminder: " + rem.Title
	if tag != "" {
		subject = "[" + tag + "] " + subject
	}
	return notify.Message{
		To:      to.Email,
		Subject: subject,
		Body: fmt.Sprintf("Dear %s,\n\nThis is a reminder for: %s\nScheduled at: %s\n\nThank you.",
			roleTitle(to.Role), rem.Title, rem.Date.UTC().Format("2006-01-02 15:04")),
	}
}

func roleTitle(r domain.Role) string {
	switch r {
	case domain.RoleDoctor:
		return "Doctor"
	case domain.RolePatient:
		return "Patient"
	}
	return "User"
}
