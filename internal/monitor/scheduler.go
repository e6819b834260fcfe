package monitor

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/lock-access-monitor/backend/internal/lock"
	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// Defaults for the monitoring state.
const (
	DefaultIntervalMs  = 60000
	DefaultThreshold   = 70.0
	DefaultCallTimeout = 5 * time.Second
)

// Tick triggers, used as metric labels.
const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// ErrInvalidSubscriber is returned by Unsubscribe for an unknown handle.
var ErrInvalidSubscriber = fmt.Errorf("%w: invalid subscriber", lock.ErrNotFound)

// ViolationRecorder durably records a violation and returns a correlation id.
type ViolationRecorder interface {
	RecordViolation(ctx context.Context, v models.Violation) (string, error)
}

// AlertFunc receives qualifying detections.
type AlertFunc func(ctx context.Context, result models.DetectionResult) error

// CandidateFunc picks the actor to evaluate on a lock that holds a grant.
// It must not return the grantee.
type CandidateFunc func(l models.Lock) string

// OwnerCandidate evaluates the lock owner during an active rental, falling
// back to the unknown actor when no distinct owner is recorded.
func OwnerCandidate(l models.Lock) string {
	if l.OwnerID == "" {
		return models.UnknownActor
	}
	if l.CurrentGrant != nil && l.CurrentGrant.SubjectID == l.OwnerID {
		return models.UnknownActor
	}
	return l.OwnerID
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	DefaultIntervalMs int

	// Threshold overrides DefaultThreshold when set.
	Threshold *float64

	// CallTimeout bounds each recorder and subscriber call.
	CallTimeout time.Duration

	Recorder  ViolationRecorder // optional
	Candidate CandidateFunc
	Metrics   *Metrics
	Logger    *log.Logger
}

type subscriber struct {
	id string
	fn AlertFunc
}

// Scheduler periodically runs the detector over every granted lock and fans
// qualifying detections out to the violation recorder and subscribers.
type Scheduler struct {
	locks     LockSource
	detector  *Detector
	recorder  ViolationRecorder
	candidate CandidateFunc
	metrics   *Metrics
	logger    *log.Logger

	defaultIntervalMs int
	callTimeout       time.Duration

	mu          sync.Mutex
	cron        *cron.Cron
	active      bool
	intervalMs  int
	threshold   float64
	subscribers []subscriber

	// tickMu keeps passes from overlapping.
	tickMu sync.Mutex
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(locks LockSource, detector *Detector, cfg SchedulerConfig) (*Scheduler, error) {
	s := &Scheduler{
		locks:             locks,
		detector:          detector,
		recorder:          cfg.Recorder,
		candidate:         cfg.Candidate,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
		defaultIntervalMs: cfg.DefaultIntervalMs,
		callTimeout:       cfg.CallTimeout,
		threshold:         DefaultThreshold,
	}

	if s.candidate == nil {
		s.candidate = OwnerCandidate
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.defaultIntervalMs <= 0 {
		s.defaultIntervalMs = DefaultIntervalMs
	}
	if s.callTimeout <= 0 {
		s.callTimeout = DefaultCallTimeout
	}
	s.intervalMs = s.defaultIntervalMs

	if cfg.Threshold != nil {
		if err := s.SetThreshold(*cfg.Threshold); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Start begins periodic monitoring every intervalMs milliseconds, or the
// default interval when intervalMs is not positive. It returns false when
// monitoring was already running.
func (s *Scheduler) Start(intervalMs int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return false
	}
	if intervalMs <= 0 {
		intervalMs = s.defaultIntervalMs
	}

	logger := cron.PrintfLogger(s.logger)
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(every(time.Duration(intervalMs)*time.Millisecond), cron.FuncJob(s.scheduledTick))
	c.Start()

	s.cron = c
	s.active = true
	s.intervalMs = intervalMs
	s.metrics.setActive(true)

	s.logger.Printf("Lock monitoring started (interval: %dms, threshold: %.1f)", intervalMs, s.threshold)
	return true
}

// Stop halts periodic monitoring and waits for an in-flight pass to finish.
// No timer pass starts after Stop returns. It returns false when monitoring
// was already stopped.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	c := s.cron
	s.cron = nil
	s.active = false
	s.metrics.setActive(false)
	s.mu.Unlock()

	ctx := c.Stop()
	<-ctx.Done()

	s.logger.Println("Lock monitoring stopped")
	return true
}

// ManualCheck runs a monitoring pass now. If a timer pass is in flight it
// waits for it rather than running alongside it. Cancelling ctx does not cut
// the pass short; recorder and subscriber calls stay bounded by CallTimeout.
func (s *Scheduler) ManualCheck(ctx context.Context) models.TickSummary {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.tick(context.WithoutCancel(ctx), TriggerManual)
}

func (s *Scheduler) scheduledTick() {
	if !s.tickMu.TryLock() {
		s.metrics.recordSkip()
		s.logger.Println("Skipping monitoring pass, previous pass still running")
		return
	}
	defer s.tickMu.Unlock()
	s.tick(context.Background(), TriggerTimer)
}

// tick scans every lock holding an unexpired grant. Callers hold tickMu.
func (s *Scheduler) tick(ctx context.Context, trigger string) models.TickSummary {
	start := time.Now()
	threshold := s.Threshold()

	summary := models.TickSummary{
		Timestamp:  start.UTC(),
		Detections: []models.DetectionResult{},
	}

	for _, l := range s.locks.List() {
		if !l.ActiveGrantAt(start) {
			continue
		}

		result, err := s.detector.DetectForLock(ctx, s.candidate(l), l.ID)
		if err != nil {
			s.logger.Printf("Failed to run detection for lock %s: %v", l.ID, err)
			continue
		}
		if result.Detected && result.Confidence >= threshold {
			summary.Detections = append(summary.Detections, result)
		}
	}
	summary.DetectionsCount = len(summary.Detections)

	for _, d := range summary.Detections {
		s.recordViolation(ctx, d)
		s.notify(ctx, d)
	}

	s.metrics.recordTick(trigger, summary.DetectionsCount, time.Since(start))
	if summary.DetectionsCount > 0 {
		s.logger.Printf("Monitoring pass (%s) found %d unauthorized access detection(s)", trigger, summary.DetectionsCount)
	}
	return summary
}

func (s *Scheduler) recordViolation(ctx context.Context, d models.DetectionResult) {
	if s.recorder == nil {
		return
	}

	v := models.Violation{
		SubjectID:   d.SubjectID,
		LockID:      d.LockID,
		Type:        models.ViolationUnauthorizedAccess,
		Description: fmt.Sprintf("Unauthorized access attempt detected with %.1f%% confidence", d.Confidence),
		Confidence:  d.Confidence,
		DetectedAt:  d.Timestamp,
	}

	var correlationID string
	err := callWithTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		id, err := s.recorder.RecordViolation(ctx, v)
		correlationID = id
		return err
	})
	if err != nil {
		s.metrics.recordFailure("recorder")
		s.logger.Printf("Failed to record violation for lock %s: %v", d.LockID, err)
		return
	}
	s.logger.Printf("Recorded violation for lock %s (correlation: %s)", d.LockID, correlationID)
}

func (s *Scheduler) notify(ctx context.Context, d models.DetectionResult) {
	s.mu.Lock()
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		err := callWithTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
			return sub.fn(ctx, d)
		})
		if err != nil {
			s.metrics.recordFailure("subscriber")
			s.logger.Printf("Alert subscriber %s failed: %v", sub.id, err)
		}
	}
}

// Subscribe registers fn for qualifying detections and returns its handle.
func (s *Scheduler) Subscribe(fn AlertFunc) string {
	id := uuid.NewString()

	s.mu.Lock()
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return id
}

// Unsubscribe removes the subscriber with the given handle.
func (s *Scheduler) Unsubscribe(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub.id == id {
			s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w %q", ErrInvalidSubscriber, id)
}

// SetThreshold changes the minimum confidence a detection needs to be reported.
func (s *Scheduler) SetThreshold(value float64) error {
	if math.IsNaN(value) || value < 0 || value > 100 {
		return fmt.Errorf("%w: threshold %v outside [0,100]", lock.ErrInvalidArgument, value)
	}

	s.mu.Lock()
	s.threshold = value
	s.mu.Unlock()
	return nil
}

// Threshold returns the current detection threshold.
func (s *Scheduler) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// IsActive reports whether periodic monitoring is running.
func (s *Scheduler) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Status returns a snapshot of the monitoring state.
func (s *Scheduler) Status() models.MonitoringState {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		ids = append(ids, sub.id)
	}
	return models.MonitoringState{
		IsActive:           s.active,
		IntervalMs:         s.intervalMs,
		DetectionThreshold: s.threshold,
		Subscribers:        len(s.subscribers),
		SubscriberIDs:      ids,
	}
}

// every is a fixed-interval schedule. cron.Every rounds to whole seconds;
// this keeps millisecond intervals.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// callWithTimeout runs fn with a deadline and converts panics into errors.
// On timeout fn keeps running in its goroutine but is no longer waited for.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timed out after %s: %w", timeout, ctx.Err())
	}
}
