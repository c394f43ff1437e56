// Package proxy rotates outbound proxies for the engine, checks their
// health and backs off from proxies that keep failing.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"sync"
	"time"

	"vidgate/internal/config"
	"vidgate/internal/errs"
	"vidgate/pkg/urls"
)

const (
	defaultSOCKSPort = "1080"
	defaultHTTPPort  = "8080"

	maxBackoff = time.Hour
)

type proxyInfo struct {
	URL          string
	FailureCount int
	LastFailure  time.Time
	BackoffUntil time.Time
}

// Manager handles proxy selection, health checking and failure tracking.
type Manager struct {
	log *slog.Logger
	cfg config.Proxy

	mu      sync.Mutex
	proxies map[string]*proxyInfo
	order   []string // insertion order for consistent iteration
}

// New creates a proxy manager from the parsed proxy list.
func New(log *slog.Logger, cfg config.Proxy) (*Manager, error) {
	mgr := &Manager{
		log:     log.With(slog.String("package", "proxy")),
		cfg:     cfg,
		proxies: make(map[string]*proxyInfo, len(cfg.Proxies)),
		order:   make([]string, 0, len(cfg.Proxies)),
	}

	for i, p := range cfg.Proxies {
		if _, err := url.Parse(p); err != nil {
			// url.Error carries the raw URL, credentials included
			var urlErr *url.Error
			if errors.As(err, &urlErr) {
				err = urlErr.Err
			}

			return nil, fmt.Errorf("invalid proxy URL #%d: %w", i+1, err)
		}

		if _, exists := mgr.proxies[p]; exists {
			continue
		}

		mgr.proxies[p] = &proxyInfo{URL: p}
		mgr.order = append(mgr.order, p)
	}

	return mgr, nil
}

// Count returns the number of configured proxies.
func (m *Manager) Count() int {
	if m == nil {
		return 0
	}

	return len(m.order)
}

// AvailableCount returns the number of proxies not in backoff.
func (m *Manager) AvailableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.available(time.Now()))
}

// GetProxy returns a random proxy that is not in backoff. With health
// checks enabled, candidates are dialed in random order and the first
// reachable one wins; unreachable ones are marked failed.
func (m *Manager) GetProxy(ctx context.Context) (string, error) {
	m.mu.Lock()
	candidates := m.available(time.Now())
	m.mu.Unlock()

	if len(candidates) == 0 {
		return "", errs.ErrNoProxiesAvailable
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	if !m.cfg.HealthCheck {
		return candidates[0], nil
	}

	for _, proxyURL := range candidates {
		if err := m.checkHealth(ctx, proxyURL); err != nil {
			m.log.DebugContext(ctx, "proxy health check failed",
				slog.String("proxy", urls.Redact(proxyURL)), slog.Any("error", err))
			m.MarkFailed(proxyURL)

			continue
		}

		return proxyURL, nil
	}

	return "", fmt.Errorf("%w: all health checks failed", errs.ErrNoProxiesAvailable)
}

// MarkFailed records a failure. After MaxFailures consecutive failures the
// proxy is put in exponential backoff capped at one hour.
func (m *Manager) MarkFailed(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.proxies[proxyURL]
	if !exists {
		return
	}

	info.FailureCount++
	info.LastFailure = time.Now()

	if info.FailureCount < m.cfg.MaxFailures {
		return
	}

	backoff := min(m.cfg.FailureBackoff*time.Duration(1<<min(info.FailureCount-m.cfg.MaxFailures, 16)), maxBackoff)
	info.BackoffUntil = info.LastFailure.Add(backoff)

	m.log.Warn("proxy put in backoff",
		slog.String("proxy", urls.Redact(proxyURL)),
		slog.Int("failure_count", info.FailureCount),
		slog.Duration("backoff", backoff))
}

// MarkSuccess resets the failure count of a proxy.
func (m *Manager) MarkSuccess(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.proxies[proxyURL]
	if !exists {
		return
	}

	info.FailureCount = 0
	info.BackoffUntil = time.Time{}
}

func (m *Manager) available(now time.Time) []string {
	available := make([]string, 0, len(m.order))

	for _, proxyURL := range m.order {
		if now.Before(m.proxies[proxyURL].BackoffUntil) {
			continue
		}

		available = append(available, proxyURL)
	}

	return available
}

// checkHealth dials the proxy's host over TCP.
func (m *Manager) checkHealth(ctx context.Context, proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("parse proxy URL: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "socks5", "socks5h":
			host = net.JoinHostPort(u.Hostname(), defaultSOCKSPort)
		case "http", "https":
			host = net.JoinHostPort(u.Hostname(), defaultHTTPPort)
		default:
			return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthTimeout)
	defer cancel()

	dialer := &net.Dialer{}

	conn, err := dialer.DialContext(checkCtx, "tcp", host)
	if err != nil {
		return fmt.Errorf("dial proxy: %w", err)
	}

	return conn.Close()
}
