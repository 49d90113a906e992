// Scheduler Service
// Periodic scan of the payment store for receipt notifications and pending reminders
package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"sendcash-backend/internal/clients"
	"sendcash-backend/internal/metrics"
	"sendcash-backend/internal/models"
	"sendcash-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// ErrTickInProgress returned by RunOnce when another tick has not finished
var ErrTickInProgress = errors.New("scheduler tick already in progress")

// SchedulerState per-tick state machine: Idle -> Scanning -> Dispatching -> Idle
type SchedulerState int32

const (
	SchedulerIdle SchedulerState = iota
	SchedulerScanning
	SchedulerDispatching
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerScanning:
		return "scanning"
	case SchedulerDispatching:
		return "dispatching"
	default:
		return "idle"
	}
}

// SchedulerOptions tick cadence and reminder policy
type SchedulerOptions struct {
	Interval         time.Duration
	PendingThreshold time.Duration // age before a pending payment gets a reminder
	RemindEvery      time.Duration // minimum gap between reminders for one payment
	MaxReminders     int
	BatchSize        int // per query, per tick
}

// TickResult counters for one tick
type TickResult struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`
	Sent      int           `json:"sent"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"` // no linked chat
	Settled   int           `json:"settled"` // pending payments found mined on chain
}

// PendingReconciler checks a pending payment against the chain and returns
// its status afterwards
type PendingReconciler interface {
	ReconcilePending(ctx context.Context, p *models.Payment) (models.PaymentStatus, error)
}

// SchedulerStats snapshot for the admin API
type SchedulerStats struct {
	State        string      `json:"state"`
	Running      bool        `json:"running"`
	Ticks        uint64      `json:"ticks"`
	SkippedTicks uint64      `json:"skippedTicks"`
	LastTick     *TickResult `json:"lastTick,omitempty"`
	LastError    string      `json:"lastError,omitempty"`
}

// SchedulerService drives receipt notifications and pending reminders.
// Two ticks never run at the same time; a tick that fires while another is
// still dispatching is skipped and counted.
type SchedulerService struct {
	payments  repository.PaymentRepository
	usernames *UsernameService
	formatter *NotificationFormatter
	transport clients.Transport
	settler   PendingReconciler // optional
	opts      SchedulerOptions
	log       *logrus.Logger
	now       func() time.Time

	inTick atomic.Bool
	state  atomic.Int32

	mu           sync.Mutex
	ticks        uint64
	skippedTicks uint64
	lastTick     *TickResult
	lastErr      string

	loopMu  sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSchedulerService creates a new SchedulerService instance
func NewSchedulerService(
	payments repository.PaymentRepository,
	usernames *UsernameService,
	formatter *NotificationFormatter,
	transport clients.Transport,
	opts SchedulerOptions,
	log *logrus.Logger,
) *SchedulerService {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxReminders <= 0 {
		opts.MaxReminders = 1
	}
	return &SchedulerService{
		payments:  payments,
		usernames: usernames,
		formatter: formatter,
		transport: transport,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// SetReconciler lets ticks settle mined payments before reminding their senders
func (s *SchedulerService) SetReconciler(r PendingReconciler) {
	s.settler = r
}

// Start runs the ticker loop until Stop or ctx is done
func (s *SchedulerService) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})

	s.log.WithFields(logrus.Fields{
		"interval":          s.opts.Interval.String(),
		"pending_threshold": s.opts.PendingThreshold.String(),
		"remind_every":      s.opts.RemindEvery.String(),
		"max_reminders":     s.opts.MaxReminders,
	}).Info("🚀 Scheduler service starting")

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)
}

// Stop ends the loop and waits for an in-flight tick to finish
func (s *SchedulerService) Stop() {
	s.loopMu.Lock()
	if !s.started {
		s.loopMu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.loopMu.Unlock()

	s.wg.Wait()
	s.log.Info("🛑 Scheduler service stopped")
}

func (s *SchedulerService) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	// in-flight deliveries finish even when the loop is cancelled
	tickCtx := context.WithoutCancel(ctx)
	s.spawnTick(tickCtx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.spawnTick(tickCtx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// spawnTick runs a tick in its own goroutine so that a slow tick lets the
// next one fire and be rejected by the in-tick guard
func (s *SchedulerService) spawnTick(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
			s.log.WithError(err).Error("❌ Scheduler tick failed")
		}
	}()
}

// RunOnce executes a single tick, or returns ErrTickInProgress without doing
// anything if another tick is running
func (s *SchedulerService) RunOnce(ctx context.Context) (*TickResult, error) {
	if !s.inTick.CompareAndSwap(false, true) {
		metrics.SchedulerTicks.WithLabelValues("skipped_overlap").Inc()
		s.mu.Lock()
		s.skippedTicks++
		s.mu.Unlock()
		s.log.Warn("⏭️ Scheduler tick skipped, previous tick still running")
		return nil, ErrTickInProgress
	}
	defer s.inTick.Store(false)
	defer s.setState(SchedulerIdle)

	result := &TickResult{StartedAt: s.now()}
	err := s.tick(ctx, result)
	result.Duration = s.now().Sub(result.StartedAt)
	metrics.SchedulerTickDuration.Observe(result.Duration.Seconds())

	s.mu.Lock()
	s.ticks++
	s.lastTick = result
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		metrics.SchedulerTicks.WithLabelValues("scan_failed").Inc()
		return result, err
	}
	metrics.SchedulerTicks.WithLabelValues("completed").Inc()

	if result.Scanned > 0 {
		s.log.WithFields(logrus.Fields{
			"scanned":  result.Scanned,
			"sent":     result.Sent,
			"failed":   result.Failed,
			"skipped":  result.Skipped,
			"settled":  result.Settled,
			"duration": result.Duration.String(),
		}).Info("⏰ Scheduler tick completed")
	}
	return result, nil
}

func (s *SchedulerService) tick(ctx context.Context, result *TickResult) error {
	s.setState(SchedulerScanning)
	now := s.now()

	unnotified, err := s.payments.FindUnnotifiedConfirmed(ctx, s.opts.BatchSize)
	if err != nil {
		return persistenceError("scan unnotified payments", err)
	}
	stale, err := s.payments.FindStalePending(ctx,
		now.Add(-s.opts.PendingThreshold).Unix(),
		now.Add(-s.opts.RemindEvery).Unix(),
		s.opts.MaxReminders,
		s.opts.BatchSize,
	)
	if err != nil {
		return persistenceError("scan stale pending payments", err)
	}
	result.Scanned = len(unnotified) + len(stale)

	s.setState(SchedulerDispatching)
	for _, p := range unnotified {
		s.count(result, "receipt", s.dispatchReceipt(ctx, p))
	}
	for _, p := range stale {
		s.count(result, "reminder", s.dispatchReminder(ctx, p, now))
	}
	return nil
}

type dispatchOutcome string

const (
	outcomeSent    dispatchOutcome = "sent"
	outcomeFailed  dispatchOutcome = "failed"
	outcomeSkipped dispatchOutcome = "skipped"
	outcomeSettled dispatchOutcome = "settled"
)

func (s *SchedulerService) count(result *TickResult, kind string, outcome dispatchOutcome) {
	metrics.SchedulerDispatches.WithLabelValues(kind, string(outcome)).Inc()
	switch outcome {
	case outcomeSent:
		result.Sent++
	case outcomeFailed:
		result.Failed++
	case outcomeSkipped:
		result.Skipped++
	case outcomeSettled:
		result.Settled++
	}
}

// dispatchReceipt tells the receiver about a confirmed payment. A failed send
// leaves notified_at unset so the next tick picks the payment up again.
func (s *SchedulerService) dispatchReceipt(ctx context.Context, p *models.Payment) dispatchOutcome {
	logger := s.log.WithFields(logrus.Fields{"tx_hash": p.TxHash, "kind": "receipt"})

	chatID, err := s.usernames.ChatIDForAddress(ctx, p.ToAddress)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WithError(err).Warn("chat lookup failed")
			return outcomeFailed
		}
		// nobody to tell; mark it so it stops occupying the batch
		if err := s.payments.MarkNotified(ctx, p.TxHash, s.now().Unix()); err != nil {
			logger.WithError(err).Warn("failed to mark payment without chat")
		}
		return outcomeSkipped
	}

	ev, err := EventFromPayment(p)
	if err != nil {
		logger.WithError(err).Warn("unreadable payment amounts")
		return outcomeFailed
	}
	text, err := s.formatter.Format(ev)
	if err != nil {
		logger.WithError(err).Warn("failed to format receipt")
		return outcomeFailed
	}
	if err := s.transport.Send(ctx, chatID, text); err != nil {
		logger.WithError(err).Warn("receipt delivery failed")
		return outcomeFailed
	}
	if err := s.payments.MarkNotified(ctx, p.TxHash, s.now().Unix()); err != nil {
		// delivered but not recorded; the next tick may deliver it again
		logger.WithError(err).Warn("failed to mark payment notified")
	}
	return outcomeSent
}

// dispatchReminder nudges the sender of a payment stuck in pending
func (s *SchedulerService) dispatchReminder(ctx context.Context, p *models.Payment, now time.Time) dispatchOutcome {
	logger := s.log.WithFields(logrus.Fields{"tx_hash": p.TxHash, "kind": "reminder"})

	if s.settler != nil {
		status, err := s.settler.ReconcilePending(ctx, p)
		switch {
		case err != nil:
			// chain unreachable; the sender still hears about it
			logger.WithError(err).Warn("pending payment lookup failed")
		case status != models.PaymentStatusPending:
			logger.WithField("status", status).Info("pending payment settled on chain")
			return outcomeSettled
		}
	}

	chatID, err := s.usernames.ChatIDForAddress(ctx, p.FromAddress)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WithError(err).Warn("chat lookup failed")
			return outcomeFailed
		}
		// counts toward MaxReminders so unlinked senders age out of the scan
		if err := s.payments.MarkReminded(ctx, p.TxHash, now.Unix()); err != nil {
			logger.WithError(err).Warn("failed to mark payment without chat")
		}
		return outcomeSkipped
	}

	ev, err := EventFromPayment(p)
	if err != nil {
		logger.WithError(err).Warn("unreadable payment amounts")
		return outcomeFailed
	}
	age := now.Sub(time.Unix(p.CreatedAt, 0))
	text, err := s.formatter.FormatPendingReminder(ev, age)
	if err != nil {
		logger.WithError(err).Warn("failed to format reminder")
		return outcomeFailed
	}
	if err := s.transport.Send(ctx, chatID, text); err != nil {
		logger.WithError(err).Warn("reminder delivery failed")
		return outcomeFailed
	}
	if err := s.payments.MarkReminded(ctx, p.TxHash, now.Unix()); err != nil {
		logger.WithError(err).Warn("failed to mark payment reminded")
	}
	return outcomeSent
}

func (s *SchedulerService) setState(state SchedulerState) {
	s.state.Store(int32(state))
	metrics.SchedulerState.Set(float64(state))
}

// State current tick state
func (s *SchedulerService) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// Stats snapshot of tick counters
func (s *SchedulerService) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loopMu.Lock()
	running := s.started
	s.loopMu.Unlock()

	stats := SchedulerStats{
		State:        s.State().String(),
		Running:      running,
		Ticks:        s.ticks,
		SkippedTicks: s.skippedTicks,
		LastError:    s.lastErr,
	}
	if s.lastTick != nil {
		last := *s.lastTick
		stats.LastTick = &last
	}
	return stats
}
