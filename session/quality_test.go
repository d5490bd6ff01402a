package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/pathcodec"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		rtt  time.Duration
		loss float64
		want models.QualityLevel
	}{
		{40 * time.Millisecond, 0, models.QualityExcellent},
		{150 * time.Millisecond, 0, models.QualityGood},
		{300 * time.Millisecond, 0, models.QualityFair},
		{700 * time.Millisecond, 0, models.QualityPoor},
		{40 * time.Millisecond, 0.08, models.QualityPoor},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.rtt, c.loss), "rtt=%v loss=%v", c.rtt, c.loss)
	}
}

func TestTunerDegradesAndRecovers(t *testing.T) {
	base := 25 * time.Second
	tuner := NewTuner(base)

	h, changed := tuner.Observe(700*time.Millisecond, 0)
	assert.True(t, changed)
	assert.Equal(t, 2, h.Compression)
	assert.Equal(t, 45*time.Second, h.Heartbeat)

	_, changed = tuner.Observe(800*time.Millisecond, 0)
	assert.False(t, changed)

	h, changed = tuner.Observe(30*time.Millisecond, 0)
	assert.True(t, changed)
	assert.Equal(t, 0, h.Compression)
	assert.Equal(t, base, h.Heartbeat)
}

func TestTunerBackgroundAndForeground(t *testing.T) {
	base := 25 * time.Second
	tuner := NewTuner(base)
	tuner.Observe(30*time.Millisecond, 0)

	h, changed := tuner.MobileEvent("app_background", nil)
	assert.True(t, changed)
	assert.Equal(t, 60*time.Second, h.Heartbeat)
	assert.Equal(t, pathcodec.MaxLevel, h.Compression)
	assert.Equal(t, "app_background", h.Reason)

	h, _ = tuner.MobileEvent("app_foreground", nil)
	assert.Equal(t, base, h.Heartbeat)
	assert.Equal(t, 0, h.Compression)
}

func TestTunerCellularAndBattery(t *testing.T) {
	base := 25 * time.Second
	tuner := NewTuner(base)
	tuner.Observe(30*time.Millisecond, 0)

	h, _ := tuner.MobileEvent("network_change", map[string]interface{}{"type": "cellular"})
	assert.Equal(t, 1, h.Compression)

	h, _ = tuner.MobileEvent("low_battery", map[string]interface{}{"low": true})
	assert.Equal(t, 2, h.Compression)
	assert.Equal(t, 50*time.Second, h.Heartbeat)

	h, _ = tuner.MobileEvent("network_change", map[string]interface{}{"type": "wifi"})
	assert.Equal(t, 2, h.Compression)

	_, changed := tuner.MobileEvent("unknown", nil)
	assert.False(t, changed)
}
