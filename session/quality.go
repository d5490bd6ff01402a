package session

import (
	"time"

	"github.com/wfunc/doodleserver/models"
	"github.com/wfunc/doodleserver/pathcodec"
)

// Hints 下发给客户端的优化参数
type Hints struct {
	Heartbeat   time.Duration
	Compression int
	Quality     models.QualityLevel
	Reason      string
}

// Tuner derives heartbeat cadence and stroke compression from measured
// latency and client reported device state. One per connection.
type Tuner struct {
	base       time.Duration
	level      models.QualityLevel
	background bool
	cellular   bool
	lowBattery bool
	current    Hints
}

func NewTuner(base time.Duration) *Tuner {
	t := &Tuner{base: base, level: models.QualityGood}
	t.current = t.compute("")
	return t
}

func Classify(rtt time.Duration, packetLoss float64) models.QualityLevel {
	switch {
	case packetLoss > 0.05 || rtt >= 500*time.Millisecond:
		return models.QualityPoor
	case rtt >= 250*time.Millisecond:
		return models.QualityFair
	case rtt >= 100*time.Millisecond || packetLoss > 0.01:
		return models.QualityGood
	default:
		return models.QualityExcellent
	}
}

func (t *Tuner) Current() Hints { return t.current }

// Observe feeds a latency sample. changed reports whether the client should
// be told about new hints.
func (t *Tuner) Observe(rtt time.Duration, packetLoss float64) (Hints, bool) {
	t.level = Classify(rtt, packetLoss)
	return t.update("rtt")
}

// MobileEvent applies app_background, app_foreground, network_change and
// low_battery notifications.
func (t *Tuner) MobileEvent(kind string, payload map[string]interface{}) (Hints, bool) {
	switch kind {
	case "app_background":
		t.background = true
	case "app_foreground":
		t.background = false
		t.lowBattery = false
	case "network_change":
		network, _ := payload["type"].(string)
		t.cellular = network == "cellular" || network == "2g" || network == "3g" || network == "4g"
	case "low_battery":
		low := true
		if v, ok := payload["low"].(bool); ok {
			low = v
		}
		t.lowBattery = low
	default:
		return t.current, false
	}
	return t.update(kind)
}

func (t *Tuner) update(reason string) (Hints, bool) {
	next := t.compute(reason)
	changed := next.Heartbeat != t.current.Heartbeat ||
		next.Compression != t.current.Compression ||
		next.Quality != t.current.Quality
	t.current = next
	return next, changed
}

func (t *Tuner) compute(reason string) Hints {
	h := Hints{Heartbeat: t.base, Quality: t.level, Reason: reason}
	switch t.level {
	case models.QualityFair:
		h.Compression = 1
		h.Heartbeat = t.base * 7 / 5
	case models.QualityPoor:
		h.Compression = 2
		h.Heartbeat = t.base * 9 / 5
	}
	if t.cellular {
		h.Compression = max(h.Compression, 1)
	}
	if t.lowBattery {
		h.Heartbeat = max(h.Heartbeat, t.base*2)
		h.Compression = max(h.Compression, 2)
	}
	if t.background {
		h.Heartbeat = max(h.Heartbeat, t.base*12/5)
		h.Compression = pathcodec.MaxLevel
	}
	return h
}
