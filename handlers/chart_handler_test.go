package handlers

import (
	"testing"
	"time"

	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaugeSegmentsAlwaysSumToHundred(t *testing.T) {
	session, _ := newTestSession(t)
	chart := session.ChartHandler

	for c := 0; c <= 100; c++ {
		chart.Update(c, c%2 == 0)

		confidence := chart.State(models.GaugeConfidence)
		assert.Equal(t, c, confidence.Value)
		assert.Equal(t, 100, confidence.Value+confidence.Complement, "confidence segments for c=%d", c)

		quality := chart.State(models.GaugeQuality)
		assert.Equal(t, 100, quality.Value+quality.Complement, "quality segments for c=%d", c)
	}
}

func TestGaugeAccentFollowsFinding(t *testing.T) {
	session, _ := newTestSession(t)
	chart := session.ChartHandler

	chart.Update(87, true)
	assert.Equal(t, models.AccentAlert, chart.State(models.GaugeConfidence).Accent)
	// Quality is a derived display metric; it never carries the alert accent.
	assert.Equal(t, models.AccentNeutral, chart.State(models.GaugeQuality).Accent)

	chart.Update(92, false)
	assert.Equal(t, models.AccentNeutral, chart.State(models.GaugeConfidence).Accent)
}

func TestQualityGaugeStaysInDerivedBand(t *testing.T) {
	session, _ := newTestSession(t)
	chart := session.ChartHandler

	// round(87*0.95)=83, jitter adds at most 5
	for i := 0; i < 50; i++ {
		chart.Update(87, true)
		quality := chart.State(models.GaugeQuality).Value
		require.GreaterOrEqual(t, quality, 83)
		require.LessOrEqual(t, quality, 88)
	}

	// The cap clamps the band at 100
	for i := 0; i < 50; i++ {
		chart.Update(100, false)
		quality := chart.State(models.GaugeQuality).Value
		require.GreaterOrEqual(t, quality, 95)
		require.LessOrEqual(t, quality, 100)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	session, _ := newTestSession(t)
	chart := session.ChartHandler

	chart.Update(64, true)
	chart.Reset()
	first := []models.GaugeState{
		chart.State(models.GaugeConfidence),
		chart.State(models.GaugeQuality),
	}

	chart.Reset()
	second := []models.GaugeState{
		chart.State(models.GaugeConfidence),
		chart.State(models.GaugeQuality),
	}

	assert.Equal(t, first, second)
	assert.Equal(t, 0, first[0].Value)
	assert.Equal(t, 100, first[0].Complement)
	assert.Equal(t, models.AccentNeutral, first[0].Accent)
	assert.Equal(t, "--", first[0].Readout)
	assert.Equal(t, "--", first[1].Readout)
}

func TestAllSurfacesReceiveIdenticalGaugeFrames(t *testing.T) {
	session, primary := newTestSession(t)
	duplicate := &recordingSurface{}
	session.AttachSurface(duplicate)

	session.ChartHandler.Update(55, false)

	require.Eventually(t, func() bool {
		p, okP := primary.lastGauge(models.GaugeConfidence)
		d, okD := duplicate.lastGauge(models.GaugeConfidence)
		if !okP || !okD {
			return false
		}
		pSegments := p["segments"].([]int)
		dSegments := d["segments"].([]int)
		return pSegments[0] == 55 && pSegments[1] == 45 &&
			dSegments[0] == 55 && dSegments[1] == 45
	}, 3*time.Second, 20*time.Millisecond, "both surfaces should settle on [55,45]")
}

func TestLaterUpdateOverridesInFlightAnimation(t *testing.T) {
	session, surface := newTestSession(t)

	session.ChartHandler.Update(90, true)
	require.Eventually(t, func() bool {
		_, ok := surface.lastGauge(models.GaugeConfidence)
		return ok
	}, 3*time.Second, 10*time.Millisecond, "animation should have started")

	session.ChartHandler.Reset()

	require.Eventually(t, func() bool {
		frame, ok := surface.lastGauge(models.GaugeConfidence)
		if !ok {
			return false
		}
		segments := frame["segments"].([]int)
		return segments[0] == 0 && segments[1] == 100 && frame["accent"] == models.AccentNeutral
	}, 3*time.Second, 20*time.Millisecond, "reset target should win over the in-flight update")
}
