package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager owns the browser session. The session is started on the first
// Acquire and reused until Release; the next Acquire after a Release, or
// after the browser died, starts a fresh one.
type Manager struct {
	opts    *Options
	open    func(*Options) (*Session, error)
	logger  *slog.Logger
	mu      sync.Mutex
	session *Session
}

func NewManager(opts *Options, logger *slog.Logger) *Manager {
	return &Manager{
		opts:   opts,
		open:   Open,
		logger: logger.With("component", "session_manager"),
	}
}

func (m *Manager) Acquire(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && !m.session.Lost() {
		return m.session, nil
	}
	if m.session != nil {
		m.logger.Warn("browser session lost, starting a new one")
		if err := m.session.Close(); err != nil {
			m.logger.Debug("failed to close lost session", "error", err)
		}
		m.session = nil
	}

	m.logger.Info("starting browser session",
		"headless", m.opts.Headless,
		"executable", m.opts.ExecutablePath)

	session, err := m.open(m.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	m.session = session
	return session, nil
}

func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}

	err := m.session.Close()
	m.session = nil
	if err != nil {
		return fmt.Errorf("failed to release browser session: %w", err)
	}

	m.logger.Info("browser session released")
	return nil
}

func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}
