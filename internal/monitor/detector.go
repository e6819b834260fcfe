package monitor

import (
	"context"
	"log"
	"time"

	"github.com/lock-access-monitor/backend/internal/history"
	"github.com/lock-access-monitor/backend/internal/lock"
	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// LockSource is the read side of the lock registry.
type LockSource interface {
	Get(id string) (models.Lock, error)
	List() []models.Lock
}

// Detector classifies access to a lock using its history and a strategy.
type Detector struct {
	locks    LockSource
	history  history.Log
	strategy DetectionStrategy
	now      func() time.Time

	recorder      lock.EventRecorder
	recordTimeout time.Duration
	logger        *log.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithEventRecorder forwards every detection appended to history to rec,
// bounding each call by timeout.
func WithEventRecorder(rec lock.EventRecorder, timeout time.Duration) DetectorOption {
	return func(d *Detector) {
		d.recorder = rec
		if timeout > 0 {
			d.recordTimeout = timeout
		}
	}
}

// WithDetectorLogger sets the logger for recorder failures.
func WithDetectorLogger(logger *log.Logger) DetectorOption {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDetector creates a detector. A nil strategy selects NewRandomStrategy.
func NewDetector(locks LockSource, hist history.Log, strategy DetectionStrategy, opts ...DetectorOption) *Detector {
	if strategy == nil {
		strategy = NewRandomStrategy()
	}
	d := &Detector{
		locks:         locks,
		history:       hist,
		strategy:      strategy,
		now:           func() time.Time { return time.Now().UTC() },
		recordTimeout: DefaultCallTimeout,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectForLock evaluates subjectID against lockID. A positive result is
// appended to the lock's history as unauthorized_access_detected.
func (d *Detector) DetectForLock(ctx context.Context, subjectID, lockID string) (models.DetectionResult, error) {
	l, err := d.locks.Get(lockID)
	if err != nil {
		return models.DetectionResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.DetectionResult{}, err
	}
	if subjectID == "" {
		subjectID = models.UnknownActor
	}

	result := d.strategy.Evaluate(d.history.For(lockID), l, subjectID)
	result.LockID = lockID
	result.SubjectID = subjectID
	result.Timestamp = d.now()
	result.Confidence = clampConfidence(result.Confidence)

	if result.Detected {
		confidence := result.Confidence
		entry := models.HistoryEntry{
			LockID:     lockID,
			EventType:  models.EventUnauthorizedAccessDetected,
			ActorID:    subjectID,
			Timestamp:  result.Timestamp,
			Confidence: &confidence,
		}
		d.history.Append(entry)
		d.forward(ctx, entry)
	}

	return result, nil
}

// forward hands a detection entry to the event recorder. Failures are logged only.
func (d *Detector) forward(ctx context.Context, e models.HistoryEntry) {
	if d.recorder == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.recordTimeout)
	defer cancel()
	if _, err := d.recorder.RecordEvent(callCtx, e); err != nil {
		d.logger.Printf("Failed to record %s event for lock %s: %v", e.EventType, e.LockID, err)
	}
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}
