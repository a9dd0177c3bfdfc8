package worker

import (
	"context"
	"sync"
	"time"

	"nordagri/internal/domain"
	"nordagri/internal/models"

	"github.com/rs/zerolog"
)

// ConnectivityMonitor tracks whether the backend is reachable and signals
// subscribers on every offline to online transition.
//
// It starts offline, so the first successful probe after start-up signals too
// and replays whatever a previous run left queued.
type ConnectivityMonitor struct {
	pinger   domain.Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *zerolog.Logger

	mu     sync.Mutex
	online bool
	nextID uint64
	subs   map[uint64]chan struct{}
}

func NewConnectivityMonitor(pinger domain.Pinger, interval time.Duration, logger *zerolog.Logger) *ConnectivityMonitor {
	if interval <= 0 {
		interval = models.DefaultProbeInterval
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := models.DefaultBackendTimeout
	if interval < timeout {
		timeout = interval
	}
	return &ConnectivityMonitor{
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		subs:     make(map[uint64]chan struct{}),
	}
}

// Subscribe returns a channel that receives one value per reconnect and a func
// that removes the subscription. Signals that arrive while the previous one is
// still unread are coalesced.
func (m *ConnectivityMonitor) Subscribe() (<-chan struct{}, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	ch := make(chan struct{}, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Online reports the last known state.
func (m *ConnectivityMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records the connectivity state, for probes and for platform hooks
// that learn about network changes directly.
func (m *ConnectivityMonitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	if !online {
		m.logger.Warn().Msg("backend unreachable, working offline")
		return
	}

	m.logger.Info().Int("subscribers", len(m.subs)).Msg("backend reachable again")
	for _, ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Run probes the backend until ctx is done. The first probe runs immediately.
func (m *ConnectivityMonitor) Run(ctx context.Context) {
	if m.pinger == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *ConnectivityMonitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(probeCtx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger.Debug().Err(err).Msg("connectivity probe failed")
	}
	m.SetOnline(err == nil)
}
