package calls

import "math"

// Matches reports whether c satisfies every non-zero filter field. Dates bound CreatedAt,
// inclusive on both ends.
func (f Filter) Matches(c Call) bool {
	if f.AgentID != "" && c.AgentID != f.AgentID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if !f.StartDate.IsZero() && c.CreatedAt.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && c.CreatedAt.After(f.EndDate) {
		return false
	}
	return true
}

// ComputeStats aggregates rows in memory. The average only covers calls that report a
// duration and is rounded to two decimals.
func ComputeStats(rows []Call) Stats {
	var out Stats
	var durationSum, withDuration int
	for _, c := range rows {
		out.Total++
		switch c.Status {
		case StatusCompleted:
			out.Completed++
		case StatusFailed:
			out.Failed++
		}
		if c.Duration != nil {
			durationSum += *c.Duration
			withDuration++
		}
	}
	if withDuration > 0 {
		out.AvgDuration = RoundAvg(float64(durationSum) / float64(withDuration))
	}
	return out
}

func RoundAvg(v float64) float64 { return math.Round(v*100) / 100 }
