// Package chain implements the per-network connection manager: ordered
// endpoint pools with liveness tracking, failover resolution, and periodic
// health checks against EVM JSON-RPC endpoints.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	"github.com/calebward/chainarb/internal/domain"
)

// DialFunc opens a client for one endpoint URL. The default implementation
// uses go-ethereum's ethclient, which handles both http(s) and ws(s) URLs.
type DialFunc func(ctx context.Context, url string) (domain.NodeClient, error)

// DefaultDial dials an endpoint with ethclient.
func DefaultDial(ctx context.Context, url string) (domain.NodeClient, error) {
	return ethclient.DialContext(ctx, url)
}

// Config holds the connection manager tunables.
type Config struct {
	// MaxRetries is the per-endpoint consecutive-error budget; an endpoint
	// reaching it is deactivated until the cool-down elapses.
	MaxRetries int
	// ProbeAttempts is the number of probe round-trips tried per endpoint
	// within a single resolution.
	ProbeAttempts int
	// ProbeTimeout bounds each individual probe round-trip.
	ProbeTimeout time.Duration
	// ProbeBackoff is the fixed delay between probe attempts on the same
	// endpoint.
	ProbeBackoff time.Duration
	// ReactivateAfter is the cool-down after which a deactivated endpoint
	// becomes eligible again during a health check. Zero disables
	// reactivation.
	ReactivateAfter time.Duration
}

// endpoint is the mutable per-endpoint state. It is owned exclusively by the
// manager and only touched under the network's state mutex.
type endpoint struct {
	cfg           domain.Endpoint
	active        bool
	lastUsed      time.Time
	latency       time.Duration
	errorCount    int
	deactivatedAt time.Time
}

// Connection is the live handle to one network. At most one current
// connection exists per network; callers must treat it as read-only.
type Connection struct {
	Network     string
	Client      domain.NodeClient
	Healthy     bool
	BlockNumber uint64
	BlockTime   time.Time
	endpointIdx int
}

// netState bundles one network's endpoint pool and cached connection.
type netState struct {
	network   domain.Network
	mu        sync.Mutex // guards endpoints and conn; never held across I/O
	endpoints []*endpoint
	conn      *Connection

	// resolveMu serializes resolution attempts so concurrent callers do not
	// probe the same endpoints in parallel.
	resolveMu sync.Mutex

	// lastAdvance tracks when the block number last moved, for stall
	// detection during health checks.
	lastBlock   uint64
	lastAdvance time.Time
}

// Manager owns all endpoint and connection state for the configured
// networks. Connection failures are never fatal: a network with no healthy
// connection simply contributes no quotes until a health check recovers it.
type Manager struct {
	cfg      Config
	dial     DialFunc
	networks map[string]*netState
	order    []string // network ids in deterministic order
	metrics  domain.MetricsRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a Manager for the given networks and their endpoint
// lists. The endpoint order is the configured failover preference.
func NewManager(cfg Config, networks []domain.Network, endpoints map[string][]domain.Endpoint, dial DialFunc, metrics domain.MetricsRecorder, logger *slog.Logger) *Manager {
	if dial == nil {
		dial = DefaultDial
	}
	m := &Manager{
		cfg:      cfg,
		dial:     dial,
		networks: make(map[string]*netState, len(networks)),
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "chain_manager")),
		now:      time.Now,
	}
	for _, n := range networks {
		eps := make([]*endpoint, 0, len(endpoints[n.ID]))
		for _, e := range endpoints[n.ID] {
			eps = append(eps, &endpoint{cfg: e, active: true})
		}
		m.networks[n.ID] = &netState{network: n, endpoints: eps}
		m.order = append(m.order, n.ID)
	}
	sort.Strings(m.order)
	return m
}

// Resolve returns a working connection for the network. A cached healthy
// connection is returned without any network I/O; otherwise the endpoint
// list is walked in configured order with failover. When every endpoint is
// exhausted the connection is marked unhealthy and
// domain.ErrAllEndpointsFailed is returned; the periodic health check is the
// recovery path, callers must not retry in a tight loop.
func (m *Manager) Resolve(ctx context.Context, networkID string) (*Connection, error) {
	ns, ok := m.networks[networkID]
	if !ok {
		return nil, fmt.Errorf("chain: resolve %s: %w", networkID, domain.ErrUnknownNetwork)
	}

	if conn := m.cachedHealthy(ns); conn != nil {
		return conn, nil
	}

	ns.resolveMu.Lock()
	defer ns.resolveMu.Unlock()

	// A concurrent caller may have resolved while we waited.
	if conn := m.cachedHealthy(ns); conn != nil {
		return conn, nil
	}

	start := m.now()
	conn, err := m.failover(ctx, ns)
	m.record(domain.MetricEvent{
		Op:       "connection.resolve",
		Network:  networkID,
		Duration: m.now().Sub(start),
		Success:  err == nil,
		Reason:   reason(err),
		At:       m.now(),
	})
	return conn, err
}

// cachedHealthy returns the cached connection when it is marked healthy.
func (m *Manager) cachedHealthy(ns *netState) *Connection {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.conn != nil && ns.conn.Healthy {
		return ns.conn
	}
	return nil
}

// failover walks the endpoint list, probing each eligible endpoint until one
// answers. The state mutex is only held for bookkeeping, never across a
// probe.
func (m *Manager) failover(ctx context.Context, ns *netState) (*Connection, error) {
	ns.mu.Lock()
	candidates := make([]*endpoint, len(ns.endpoints))
	copy(candidates, ns.endpoints)
	ns.mu.Unlock()

	for idx, ep := range candidates {
		ns.mu.Lock()
		eligible := ep.active && ep.errorCount < m.cfg.MaxRetries
		url := ep.cfg.URL
		ns.mu.Unlock()
		if !eligible {
			continue
		}

		client, block, latency, err := m.probe(ctx, url)
		now := m.now()

		ns.mu.Lock()
		ep.lastUsed = now
		if err != nil {
			ep.errorCount++
			if ep.errorCount >= m.cfg.MaxRetries && ep.active {
				ep.active = false
				ep.deactivatedAt = now
				m.logger.Warn("endpoint deactivated",
					slog.String("network", ns.network.ID),
					slog.String("url", url),
					slog.Int("error_count", ep.errorCount),
				)
			}
			ns.mu.Unlock()
			m.logger.Debug("endpoint probe failed",
				slog.String("network", ns.network.ID),
				slog.String("url", url),
				slog.String("error", err.Error()),
			)
			continue
		}

		ep.active = true
		ep.errorCount = 0
		ep.latency = latency
		if old := ns.conn; old != nil && old.Client != nil && old.Client != client {
			old.Client.Close()
		}
		conn := &Connection{
			Network:     ns.network.ID,
			Client:      client,
			Healthy:     true,
			BlockNumber: block,
			BlockTime:   now,
			endpointIdx: idx,
		}
		ns.conn = conn
		if block > ns.lastBlock {
			ns.lastBlock = block
			ns.lastAdvance = now
		}
		ns.mu.Unlock()

		m.logger.Info("connection established",
			slog.String("network", ns.network.ID),
			slog.String("url", url),
			slog.Uint64("block", block),
			slog.Duration("latency", latency),
		)
		return conn, nil
	}

	ns.mu.Lock()
	if ns.conn != nil {
		ns.conn.Healthy = false
	}
	ns.mu.Unlock()
	return nil, fmt.Errorf("chain: resolve %s: %w", ns.network.ID, domain.ErrAllEndpointsFailed)
}

// probe dials an endpoint and performs a single round-trip (current block
// height) with a bounded number of attempts.
func (m *Manager) probe(ctx context.Context, url string) (domain.NodeClient, uint64, time.Duration, error) {
	attempts := m.cfg.ProbeAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && m.cfg.ProbeBackoff > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, 0, ctx.Err()
			case <-time.After(m.cfg.ProbeBackoff):
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		start := m.now()
		client, err := m.dial(probeCtx, url)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		block, err := client.BlockNumber(probeCtx)
		cancel()
		if err != nil {
			client.Close()
			lastErr = err
			continue
		}
		return client, block, m.now().Sub(start), nil
	}
	return nil, 0, 0, lastErr
}

// CurrentBlock resolves a connection and reads the current block height.
func (m *Manager) CurrentBlock(ctx context.Context, networkID string) (uint64, error) {
	conn, err := m.Resolve(ctx, networkID)
	if err != nil {
		return 0, err
	}
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	block, err := conn.Client.BlockNumber(callCtx)
	if err != nil {
		m.markUnhealthy(networkID)
		return 0, fmt.Errorf("chain: current block %s: %w", networkID, err)
	}
	m.observeBlock(networkID, block)
	return block, nil
}

// CurrentFeeRate resolves a connection and reads the suggested gas price in
// wei.
func (m *Manager) CurrentFeeRate(ctx context.Context, networkID string) (float64, error) {
	conn, err := m.Resolve(ctx, networkID)
	if err != nil {
		return 0, err
	}
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	price, err := conn.Client.SuggestGasPrice(callCtx)
	if err != nil {
		m.markUnhealthy(networkID)
		return 0, fmt.Errorf("chain: fee rate %s: %w", networkID, err)
	}
	wei, _ := new(big.Float).SetInt(price).Float64()
	return wei, nil
}

// HealthCheck forces a full re-resolution for the network even if the cached
// connection looks healthy. It reactivates cooled-down endpoints, detects
// stalled block production, and returns a snapshot of the resulting state.
func (m *Manager) HealthCheck(ctx context.Context, networkID string) domain.HealthSnapshot {
	now := m.now()
	snap := domain.HealthSnapshot{
		ID:      uuid.NewString(),
		Network: networkID,
		TakenAt: now,
	}

	ns, ok := m.networks[networkID]
	if !ok {
		return snap
	}

	ns.mu.Lock()
	for _, ep := range ns.endpoints {
		if !ep.active && m.cfg.ReactivateAfter > 0 && now.Sub(ep.deactivatedAt) >= m.cfg.ReactivateAfter {
			ep.active = true
			ep.errorCount = 0
			m.logger.Info("endpoint reactivated after cool-down",
				slog.String("network", networkID),
				slog.String("url", ep.cfg.URL),
			)
		}
	}
	// Forget the cached selection so Resolve performs a real probe.
	if ns.conn != nil {
		ns.conn.Healthy = false
	}
	ns.mu.Unlock()

	conn, err := m.Resolve(ctx, networkID)
	if err == nil {
		snap.Healthy = true
		snap.BlockNumber = conn.BlockNumber
		snap.BlockTime = conn.BlockTime

		// Stalled block production counts as unhealthy even when the
		// endpoint still answers.
		ns.mu.Lock()
		interval := ns.network.BlockInterval
		if interval > 0 && !ns.lastAdvance.IsZero() && now.Sub(ns.lastAdvance) > 5*interval {
			snap.Healthy = false
			if ns.conn != nil {
				ns.conn.Healthy = false
			}
			m.logger.Warn("block production stalled",
				slog.String("network", networkID),
				slog.Uint64("block", ns.lastBlock),
				slog.Duration("since_advance", now.Sub(ns.lastAdvance)),
			)
		}
		ns.mu.Unlock()
	}

	snap.Endpoints = m.endpointStatus(ns)
	return snap
}

// HealthCheckAll runs HealthCheck for every network in deterministic order.
func (m *Manager) HealthCheckAll(ctx context.Context) []domain.HealthSnapshot {
	out := make([]domain.HealthSnapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.HealthCheck(ctx, id))
	}
	return out
}

// ConnectionStatus reports, for every network, whether a healthy connection
// is currently cached. It performs no I/O and is intended for external
// reporting only.
func (m *Manager) ConnectionStatus() map[string]bool {
	out := make(map[string]bool, len(m.networks))
	for id, ns := range m.networks {
		ns.mu.Lock()
		out[id] = ns.conn != nil && ns.conn.Healthy
		ns.mu.Unlock()
	}
	return out
}

// Networks returns the configured networks in deterministic order.
func (m *Manager) Networks() []domain.Network {
	out := make([]domain.Network, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.networks[id].network)
	}
	return out
}

// Close releases all cached connections.
func (m *Manager) Close() {
	for _, ns := range m.networks {
		ns.mu.Lock()
		if ns.conn != nil && ns.conn.Client != nil {
			ns.conn.Client.Close()
			ns.conn = nil
		}
		ns.mu.Unlock()
	}
}

func (m *Manager) markUnhealthy(networkID string) {
	ns, ok := m.networks[networkID]
	if !ok {
		return
	}
	ns.mu.Lock()
	if ns.conn != nil {
		ns.conn.Healthy = false
	}
	ns.mu.Unlock()
}

// observeBlock updates the stall tracker when the chain advances.
func (m *Manager) observeBlock(networkID string, block uint64) {
	ns, ok := m.networks[networkID]
	if !ok {
		return
	}
	ns.mu.Lock()
	if ns.conn != nil {
		ns.conn.BlockNumber = block
		ns.conn.BlockTime = m.now()
	}
	if block > ns.lastBlock {
		ns.lastBlock = block
		ns.lastAdvance = m.now()
	}
	ns.mu.Unlock()
}

func (m *Manager) endpointStatus(ns *netState) []domain.EndpointStatus {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	out := make([]domain.EndpointStatus, 0, len(ns.endpoints))
	for _, ep := range ns.endpoints {
		out = append(out, domain.EndpointStatus{
			URL:        ep.cfg.URL,
			Transport:  ep.cfg.Transport,
			Active:     ep.active,
			Latency:    ep.latency,
			ErrorCount: ep.errorCount,
			LastUsed:   ep.lastUsed,
		})
	}
	return out
}

func (m *Manager) record(ev domain.MetricEvent) {
	if m.metrics != nil {
		m.metrics.Record(ev)
	}
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
