package forecast_test

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/viharnani/smart-home-monitoring/pkg/forecast"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

func TestMeanAndStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean := forecast.Mean(values)
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, forecast.StdDev(values, mean), 1e-9)

	assert.Zero(t, forecast.Mean(nil))
	assert.Zero(t, forecast.StdDev(nil, 0))
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name   string
		mean   float64
		stddev float64
		want   float64
	}{
		{"no spread", 2, 0, 1},
		{"half", 2, 1, 0.5},
		{"spread above mean", 1, 3, 0},
		{"zero mean", 0, 0, 0},
		{"negative mean", -1, 0.5, 0},
		{"nan mean", math.NaN(), 1, 0},
		{"infinite mean", math.Inf(1), 1, 0},
		{"infinite stddev", 1, math.Inf(1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, forecast.Confidence(tt.mean, tt.stddev), 1e-9)
		})
	}
}

func TestConfidence_AlwaysInUnitInterval(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("confidence stays within [0, 1]", prop.ForAll(
		func(values []float64) bool {
			mean := forecast.Mean(values)
			c := forecast.Confidence(mean, forecast.StdDev(values, mean))
			return c >= 0 && c <= 1
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
	))

	properties.Property("confidence is defined for arbitrary inputs", prop.ForAll(
		func(mean, stddev float64) bool {
			c := forecast.Confidence(mean, stddev)
			return !math.IsNaN(c) && c >= 0 && c <= 1
		},
		gen.Float64(),
		gen.Float64(),
	))

	properties.TestingRun(t)
}

func TestIsAnomalous(t *testing.T) {
	single := []float64{100}
	m := forecast.Mean(single)
	assert.False(t, forecast.IsAnomalous(single, m, forecast.StdDev(single, m)))

	uniform := []float64{2, 2, 2, 2}
	m = forecast.Mean(uniform)
	assert.False(t, forecast.IsAnomalous(uniform, m, forecast.StdDev(uniform, m)))

	spike := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 20}
	m = forecast.Mean(spike)
	assert.True(t, forecast.IsAnomalous(spike, m, forecast.StdDev(spike, m)))
}

func TestIsAnomalous_NeverForFewerThanTwo(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("zero or one reading is never anomalous", prop.ForAll(
		func(v float64, one bool) bool {
			values := []float64{}
			if one {
				values = append(values, v)
			}
			m := forecast.Mean(values)
			return !forecast.IsAnomalous(values, m, forecast.StdDev(values, m))
		},
		gen.Float64Range(0, 1e6),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func at(hour int, kwh float64) model.Reading {
	return model.Reading{
		Timestamp:      time.Date(2024, 3, 14, hour, 30, 0, 0, time.UTC),
		ConsumptionKWh: kwh,
	}
}

func TestPeakHours(t *testing.T) {
	readings := []model.Reading{at(1, 1), at(2, 1), at(19, 5), at(3, 1), at(18, 4)}
	// Bucket totals 1,1,1,4,5 average 2.4; peaks are above 3.6.
	assert.Equal(t, []int{18, 19}, forecast.PeakHours(readings, time.UTC))
}

func TestPeakHours_AveragesOnlyPresentHours(t *testing.T) {
	// Two present buckets averaging 2.5; neither exceeds 3.75.
	readings := []model.Reading{at(8, 2), at(20, 3)}
	assert.Empty(t, forecast.PeakHours(readings, time.UTC))
}

func TestPeakHours_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	readings := []model.Reading{at(1, 1), at(2, 1), at(3, 1), at(16, 10)}
	assert.Equal(t, []int{18}, forecast.PeakHours(readings, loc))
	assert.Nil(t, forecast.PeakHours(nil, loc))
}

func TestRecommend(t *testing.T) {
	recs := forecast.Recommend(3, 2, []int{7, 18}, true)
	if assert.Len(t, recs, 3) {
		assert.Equal(t, model.RecommendReduceUsage, recs[0].Kind)
		assert.InDelta(t, 0.2, recs[0].PotentialSavings, 1e-9)

		assert.Equal(t, model.RecommendScheduleUsage, recs[1].Kind)
		assert.Contains(t, recs[1].Message, "7:00, 18:00")
		assert.InDelta(t, 0.3, recs[1].PotentialSavings, 1e-9)

		assert.Equal(t, model.RecommendMaintenance, recs[2].Kind)
		assert.InDelta(t, 0.2, recs[2].PotentialSavings, 1e-9)
	}

	assert.Empty(t, forecast.Recommend(2, 2, nil, false))
}
