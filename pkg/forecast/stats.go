package forecast

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

const (
	reduceUsageFactor   = 1.2
	peakHourFactor      = 1.5
	anomalySigmas       = 2.0
	reduceSavingsRate   = 0.2
	scheduleSavingsRate = 0.15
	maintenanceSavings  = 0.1
)

// Mean returns the arithmetic mean, 0 for an empty sample.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation around mean.
func StdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// Confidence is 1 - stddev/mean clamped to [0, 1]. A non-positive or
// non-finite mean yields 0.
func Confidence(mean, stddev float64) float64 {
	if !(mean > 0) || math.IsInf(mean, 0) || math.IsNaN(stddev) || math.IsInf(stddev, 0) {
		return 0
	}
	c := 1 - stddev/mean
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// IsAnomalous reports whether any value lies more than two standard
// deviations from the mean. Fewer than two values are never anomalous.
func IsAnomalous(values []float64, mean, stddev float64) bool {
	if len(values) < 2 {
		return false
	}
	for _, v := range values {
		if math.Abs(v-mean) > anomalySigmas*stddev {
			return true
		}
	}
	return false
}

// PeakHours buckets readings by hour of day in loc and returns, ascending,
// the hours whose total exceeds 1.5 times the average of the non-empty
// buckets.
func PeakHours(readings []model.Reading, loc *time.Location) []int {
	if len(readings) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	totals := make(map[int]float64, 24)
	var sum float64
	for _, r := range readings {
		totals[r.Timestamp.In(loc).Hour()] += r.ConsumptionKWh
		sum += r.ConsumptionKWh
	}
	avg := sum / float64(len(totals))

	var peaks []int
	for hour, total := range totals {
		if total > peakHourFactor*avg {
			peaks = append(peaks, hour)
		}
	}
	sort.Ints(peaks)
	return peaks
}

// Recommend derives advice from a sample's statistics.
func Recommend(predicted, mean float64, peaks []int, anomalous bool) []model.Recommendation {
	var recs []model.Recommendation

	if predicted > reduceUsageFactor*mean {
		recs = append(recs, model.Recommendation{
			Kind:             model.RecommendReduceUsage,
			Message:          "Consumption is trending above its usual level. Consider reducing usage during peak hours.",
			PotentialSavings: (predicted - mean) * reduceSavingsRate,
		})
	}

	if len(peaks) > 0 {
		recs = append(recs, model.Recommendation{
			Kind:             model.RecommendScheduleUsage,
			Message:          "Consider moving usage outside peak hours: " + formatHours(peaks),
			PotentialSavings: mean * scheduleSavingsRate,
		})
	}

	if anomalous {
		recs = append(recs, model.Recommendation{
			Kind:             model.RecommendMaintenance,
			Message:          "Unusual consumption pattern detected. The device may need maintenance.",
			PotentialSavings: mean * maintenanceSavings,
		})
	}

	return recs
}

func formatHours(hours []int) string {
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = fmt.Sprintf("%d:00", h)
	}
	return strings.Join(parts, ", ")
}
