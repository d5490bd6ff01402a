// monitor/monitor.go
package monitor

import (
	"context"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wfunc/doodleserver/models"
)

// Metrics implements room.Metrics and gateway.Metrics.
type Metrics struct {
	Rooms          *prometheus.GaugeVec
	Players        prometheus.Gauge
	Sessions       prometheus.Gauge
	ActiveGames    prometheus.Gauge
	Connections    prometheus.Gauge
	RoomsOpened    *prometheus.CounterVec
	GamesStarted   prometheus.Counter
	GamesEnded     *prometheus.CounterVec
	Guesses        *prometheus.CounterVec
	StrokeFanout   prometheus.Histogram
	RateLimits     *prometheus.CounterVec
	AuthFailures   prometheus.Counter
	MessagesByType *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Rooms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Number of live rooms by visibility",
		}, []string{"visibility"}),
		Players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_players",
			Help:      "Number of players seated in rooms",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of authenticated connections",
		}),
		ActiveGames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_games",
			Help:      "Number of rooms with a game in progress",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of open websocket connections",
		}),
		RoomsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_opened_total",
			Help:      "Rooms created by visibility",
		}, []string{"visibility"}),
		GamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Games started",
		}),
		GamesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_ended_total",
			Help:      "Games ended by outcome",
		}, []string{"outcome"}),
		Guesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guesses_total",
			Help:      "Guesses by result",
		}, []string{"result"}),
		StrokeFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stroke_recipients",
			Help:      "Recipients per relayed stroke",
			Buckets:   prometheus.LinearBuckets(1, 1, 12),
		}),
		RateLimits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Messages refused by a rate limit",
		}, []string{"kind"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Connections refused during authentication",
		}),
		MessagesByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Client messages received by event type",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.Rooms,
		m.Players,
		m.Sessions,
		m.ActiveGames,
		m.Connections,
		m.RoomsOpened,
		m.GamesStarted,
		m.GamesEnded,
		m.Guesses,
		m.StrokeFanout,
		m.RateLimits,
		m.AuthFailures,
		m.MessagesByType,
	)
	return m
}

func (m *Metrics) RoomOpened(v models.Visibility) { m.RoomsOpened.WithLabelValues(string(v)).Inc() }
func (m *Metrics) RoomClosed(models.Visibility)   {}
func (m *Metrics) GameStarted()                   { m.GamesStarted.Inc() }

func (m *Metrics) GameEnded(cancelled bool) {
	outcome := "finished"
	if cancelled {
		outcome = "cancelled"
	}
	m.GamesEnded.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Guess(correct bool) {
	result := "wrong"
	if correct {
		result = "correct"
	}
	m.Guesses.WithLabelValues(result).Inc()
}

func (m *Metrics) StrokeRelayed(recipients int) { m.StrokeFanout.Observe(float64(recipients)) }
func (m *Metrics) RateLimited(kind string)      { m.RateLimits.WithLabelValues(kind).Inc() }
func (m *Metrics) ConnectionOpened()            { m.Connections.Inc() }
func (m *Metrics) ConnectionClosed()            { m.Connections.Dec() }
func (m *Metrics) AuthFailed()                  { m.AuthFailures.Inc() }
func (m *Metrics) MessageReceived(event string) { m.MessagesByType.WithLabelValues(event).Inc() }

func (m *Metrics) observeStats(st models.Stats) {
	m.Rooms.WithLabelValues(string(models.Public)).Set(float64(st.PublicRooms))
	m.Rooms.WithLabelValues(string(models.Private)).Set(float64(st.PrivateRooms))
	m.Players.Set(float64(st.Players))
	m.Sessions.Set(float64(st.Sessions))
	m.ActiveGames.Set(float64(st.ActiveGames))
}

// Monitor 持有指标注册表，并周期性把注册表统计同步到 gauge
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
	stats     func() models.Stats

	mutex sync.Mutex
	last  models.Stats
}

func NewMonitor(namespace string, stats func() models.Stats) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
		stats:     stats,
	}
	publishExpvar(m)
	return m
}

func (m *Monitor) Metrics() *Metrics { return m.metrics }

// Registry exposes the registry so other components can add collectors.
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// Handler 提供 /metrics
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Refresh pulls the current stats once.
func (m *Monitor) Refresh() models.Stats {
	if m.stats == nil {
		return models.Stats{}
	}
	st := m.stats()
	m.metrics.observeStats(st)
	m.mutex.Lock()
	m.last = st
	m.mutex.Unlock()
	return st
}

// Last 最近一次同步的统计
func (m *Monitor) Last() models.Stats {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.last
}

func (m *Monitor) Uptime() time.Duration { return time.Since(m.startTime) }

// Run 周期刷新，直到 ctx 结束
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.Refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh()
		}
	}
}

var (
	expvarOnce sync.Once
	expvarMon  struct {
		sync.RWMutex
		m *Monitor
	}
)

// expvar 名字全局唯一，只发布一次，指向最新的 Monitor
func publishExpvar(m *Monitor) {
	expvarMon.Lock()
	expvarMon.m = m
	expvarMon.Unlock()

	expvarOnce.Do(func() {
		current := func() *Monitor {
			expvarMon.RLock()
			defer expvarMon.RUnlock()
			return expvarMon.m
		}
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return current().Uptime().Seconds()
		}))
		expvar.Publish("stats", expvar.Func(func() interface{} {
			return current().Last()
		}))
	})
}
