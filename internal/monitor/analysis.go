package monitor

import (
	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// Analyze summarizes a lock's history and scores it for risk. It never
// writes to the history.
func (d *Detector) Analyze(lockID string) (models.AnalysisReport, error) {
	if _, err := d.locks.Get(lockID); err != nil {
		return models.AnalysisReport{}, err
	}

	entries := d.history.For(lockID)
	report := models.AnalysisReport{
		LockID:       lockID,
		AccessCount:  len(entries),
		AccessCounts: make(map[models.EventType]int),
		Anomalies:    []models.Anomaly{},
		GeneratedAt:  d.now(),
	}

	var detections []models.HistoryEntry
	for _, e := range entries {
		report.AccessCounts[e.EventType]++
		if e.EventType == models.EventUnauthorizedAccessDetected {
			detections = append(detections, e)
		}
	}

	report.TimeStats = timeStats(entries)

	validations := report.AccessCounts[models.EventAccessValidated]
	unlocks := report.AccessCounts[models.EventDoorUnlocked]

	if len(detections) > 0 {
		report.Anomalies = append(report.Anomalies, models.Anomaly{
			Type:    models.AnomalyUnauthorizedAccess,
			Count:   len(detections),
			Entries: detections,
		})
	}

	if validations > 3*unlocks && validations > 10 {
		report.Anomalies = append(report.Anomalies, models.Anomaly{
			Type:        models.AnomalyExcessiveValidations,
			Validations: validations,
			Unlocks:     unlocks,
			Ratio:       float64(validations) / float64(max(1, unlocks)),
		})
	}

	score := 25*len(report.Anomalies) + 15*len(detections)
	if validations > 2*unlocks {
		score += 10
	}
	report.RiskScore = min(100, score)

	return report, nil
}

func timeStats(entries []models.HistoryEntry) models.TimeStats {
	if len(entries) == 0 {
		return models.TimeStats{}
	}

	first := entries[0].Timestamp
	last := entries[len(entries)-1].Timestamp
	stats := models.TimeStats{
		FirstEvent: &first,
		LastEvent:  &last,
	}

	count := float64(len(entries))
	if len(entries) < 2 {
		stats.AccessesPerDay = count
		return stats
	}

	days := last.Sub(first).Hours() / 24
	stats.AccessesPerDay = count / max(1, days)
	return stats
}
