package meter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gobl0910/pkg/bl0910"
	"github.com/itohio/gobl0910/pkg/config"
	"github.com/itohio/gobl0910/pkg/reading"
)

func newTestMeter(window float64) *Meter {
	return New(&config.Config{
		Measurement: config.MeasurementConfig{WindowSeconds: window},
	})
}

func feed(m *Meter, rs ...reading.Reading) {
	for _, r := range rs {
		m.processReading(r)
	}
}

var (
	t0      = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	voltage = bl0910.Shared(bl0910.Voltage)
	energy1 = bl0910.PerChannel(bl0910.Energy, 1)
	power2  = bl0910.PerChannel(bl0910.Power, 2)
)

func at(sec int, m bl0910.Measurement, v float64) reading.Reading {
	return reading.Reading{Timestamp: t0.Add(time.Duration(sec) * time.Second), Measurement: m, Value: v}
}

func TestMeter_Latest(t *testing.T) {
	m := newTestMeter(60)

	_, ok := m.Latest(voltage)
	assert.False(t, ok)

	feed(m, at(0, voltage, 229), at(10, voltage, 231), at(10, power2, 55))

	r, ok := m.Latest(voltage)
	require.True(t, ok)
	assert.Equal(t, 231.0, r.Value)

	r, ok = m.Latest(power2)
	require.True(t, ok)
	assert.Equal(t, 55.0, r.Value)
}

func TestMeter_WindowPrunesByTimestamp(t *testing.T) {
	tests := []struct {
		name   string
		window float64
		secs   []int
		want   []float64
	}{
		{name: "all inside", window: 60, secs: []int{0, 10, 20}, want: []float64{0, 10, 20}},
		{name: "oldest dropped", window: 15, secs: []int{0, 10, 20}, want: []float64{10, 20}},
		{name: "boundary excluded", window: 10, secs: []int{0, 10, 20}, want: []float64{20}},
		{name: "zero window keeps latest", window: 0, secs: []int{0, 10, 20}, want: []float64{20}},
		{name: "gap keeps latest", window: 5, secs: []int{0, 100}, want: []float64{100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMeter(tt.window)
			for _, s := range tt.secs {
				feed(m, at(s, voltage, float64(s)))
			}

			var got []float64
			for _, r := range m.History(voltage, 0) {
				got = append(got, r.Value)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeter_HistoryDownsampled(t *testing.T) {
	m := newTestMeter(1000)
	for i := 0; i < 100; i++ {
		feed(m, at(i, power2, float64(i)))
	}

	h := m.History(power2, 10)
	require.Len(t, h, 10)
	assert.Equal(t, 0.0, h[0].Value)
	assert.Equal(t, 90.0, h[9].Value)

	assert.Len(t, m.History(power2, 0), 100)
	assert.Empty(t, m.History(voltage, 10))
}

func TestMeter_HistoryIsCopy(t *testing.T) {
	m := newTestMeter(60)
	feed(m, at(0, voltage, 230))

	h := m.History(voltage, 0)
	h[0].Value = 0

	r, _ := m.Latest(voltage)
	assert.Equal(t, 230.0, r.Value)
}

func TestMeter_Rate(t *testing.T) {
	m := newTestMeter(7200)

	feed(m, at(0, energy1, 1.0))
	_, ok := m.Rate(energy1)
	assert.False(t, ok, "needs two readings")

	// 0.5 kWh in 30 minutes is 1 kW.
	feed(m, at(1800, energy1, 1.5))
	rate, ok := m.Rate(energy1)
	require.True(t, ok)
	assert.InDelta(t, 1.0, rate, 1e-9)

	feed(m, at(1800, energy1, 1.6))
	_, ok = m.Rate(energy1)
	assert.False(t, ok, "same timestamp")
}

func TestMeter_Stats(t *testing.T) {
	m := newTestMeter(60)
	feed(m, at(0, voltage, 228), at(1, voltage, 232), at(2, voltage, 230))

	s, ok := m.Stats(voltage)
	require.True(t, ok)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 228.0, s.Min)
	assert.Equal(t, 232.0, s.Max)
	assert.InDelta(t, 230.0, s.Mean, 1e-9)
	assert.Equal(t, at(2, voltage, 230), s.Last)

	_, ok = m.Stats(power2)
	assert.False(t, ok)
}

func TestMeter_Measurements(t *testing.T) {
	m := newTestMeter(60)
	feed(m, at(0, power2, 1), at(0, energy1, 1), at(0, voltage, 1), at(0, bl0910.PerChannel(bl0910.Current, 1), 1))

	assert.Equal(t, []bl0910.Measurement{
		voltage,
		bl0910.PerChannel(bl0910.Current, 1),
		energy1,
		power2,
	}, m.Measurements())
}

func TestMeter_OnUpdate(t *testing.T) {
	m := newTestMeter(60)

	var got []reading.Reading
	m.OnUpdate(func(r reading.Reading) {
		got = append(got, r)
	})
	m.OnUpdate(nil)

	feed(m, at(0, voltage, 230), at(1, power2, 10))
	assert.Equal(t, []reading.Reading{at(0, voltage, 230), at(1, power2, 10)}, got)
}

func TestMeter_ProcessReadings(t *testing.T) {
	m := newTestMeter(60)

	input := make(chan reading.Reading, 3)
	input <- at(0, voltage, 229)
	input <- at(1, voltage, 230)
	input <- at(2, voltage, 231)
	close(input)

	m.ProcessReadings(input)

	s, ok := m.Stats(voltage)
	require.True(t, ok)
	assert.Equal(t, 3, s.Count)
}
