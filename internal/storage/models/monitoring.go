package models

import (
	"time"
)

// DetectionResult is the outcome of evaluating one actor against one lock.
type DetectionResult struct {
	LockID     string    `json:"lock_id"`
	Detected   bool      `json:"detected"`
	Confidence float64   `json:"confidence"`
	SubjectID  string    `json:"subject_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Violation is what gets handed to the violation ledger for a qualifying detection.
type Violation struct {
	SubjectID   string    `json:"subject_id"`
	LockID      string    `json:"lock_id"`
	Type        string    `json:"violation_type"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	DetectedAt  time.Time `json:"detected_at"`
}

// ViolationUnauthorizedAccess is the violation type raised by the monitor.
const ViolationUnauthorizedAccess = "unauthorized_access"

// ViolationRecord is a violation as stored in the ledger.
type ViolationRecord struct {
	Violation
	ID         string    `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MonitoringState is a snapshot of the monitoring scheduler.
type MonitoringState struct {
	IsActive           bool     `json:"is_active"`
	IntervalMs         int      `json:"interval_ms"`
	DetectionThreshold float64  `json:"detection_threshold"`
	Subscribers        int      `json:"subscribers"`
	SubscriberIDs      []string `json:"subscriber_ids"`
}

// TickSummary reports the outcome of one monitoring pass.
type TickSummary struct {
	Timestamp       time.Time         `json:"timestamp"`
	DetectionsCount int               `json:"detections_count"`
	Detections      []DetectionResult `json:"detections"`
}

// AnomalyType names a finding in an analysis report.
type AnomalyType string

const (
	AnomalyUnauthorizedAccess   AnomalyType = "unauthorized_access"
	AnomalyExcessiveValidations AnomalyType = "excessive_validations"
)

// Anomaly is one finding of an access history analysis.
type Anomaly struct {
	Type        AnomalyType    `json:"type"`
	Count       int            `json:"count,omitempty"`
	Entries     []HistoryEntry `json:"entries,omitempty"`
	Validations int            `json:"validations,omitempty"`
	Unlocks     int            `json:"unlocks,omitempty"`
	Ratio       float64        `json:"ratio,omitempty"`
}

// TimeStats summarizes when a lock was accessed.
type TimeStats struct {
	FirstEvent     *time.Time `json:"first_event,omitempty"`
	LastEvent      *time.Time `json:"last_event,omitempty"`
	AccessesPerDay float64    `json:"accesses_per_day"`
}

// AnalysisReport is the result of analyzing one lock's access history.
type AnalysisReport struct {
	LockID       string            `json:"lock_id"`
	AccessCount  int               `json:"access_count"`
	AccessCounts map[EventType]int `json:"access_counts"`
	TimeStats    TimeStats         `json:"time_stats"`
	Anomalies    []Anomaly         `json:"anomalies"`
	RiskScore    int               `json:"risk_score"`
	GeneratedAt  time.Time         `json:"generated_at"`
}
