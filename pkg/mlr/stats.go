package mlr

import "time"

// OtherErrorCode is the Statistics.ErrorCodes key for codes that are not
// predefined ebMS error codes.
const OtherErrorCode = "other"

// Statistics summarizes the tracking table.
type Statistics struct {
	TrackedMessages int            `json:"tracked_messages"`
	StatusBreakdown map[Status]int `json:"status_breakdown"`
	// AverageDeliveryTime is the mean time to the settling signal over
	// delivered and failed records; nil when none completed.
	AverageDeliveryTime *time.Duration `json:"average_delivery_time"`
	// ErrorCodes counts the codes of every processed error signal. Codes
	// outside the ebMS catalogue are counted under OtherErrorCode.
	ErrorCodes  map[string]int `json:"error_codes"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// GenerateStatistics summarizes the current tracking state. Pending records
// past their timeout count as timed out. An empty tracker yields zero counts
// for every status.
func (t *Tracker) GenerateStatistics() Statistics {
	now := t.now()
	stats := Statistics{
		StatusBreakdown: make(map[Status]int, len(statuses)),
		ErrorCodes:      map[string]int{},
		GeneratedAt:     now.UTC(),
	}
	for _, s := range statuses {
		stats.StatusBreakdown[s] = 0
	}

	var total time.Duration
	var completed int
	t.records.Range(func(_ string, rec TrackingRecord) bool {
		stats.TrackedMessages++
		stats.StatusBreakdown[EffectiveStatus(now, rec)]++
		if d, ok := rec.DeliveryTime(); ok {
			total += d
			completed++
		}
		return true
	})
	if completed > 0 {
		avg := total / time.Duration(completed)
		stats.AverageDeliveryTime = &avg
	}

	t.errorCodes.Range(func(code string, n int) bool {
		stats.ErrorCodes[code] = n
		return true
	})
	return stats
}
