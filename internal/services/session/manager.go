package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nearest-store-service/internal/adapters/mapsurface"
	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/platform/obs"
	"nearest-store-service/internal/ports"
	"nearest-store-service/internal/services"
	"nearest-store-service/internal/services/mapsync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Session is one browser map page: a controller plus the surface it drives.
type Session struct {
	ID         string
	CreatedAt  time.Time
	Controller *mapsync.Controller
	Surface    *mapsurface.WSSurface

	lastSeen atomic.Time
	cancel   context.CancelFunc
}

// Touch records API activity on the session.
func (s *Session) Touch() { s.lastSeen.Store(time.Now()) }

func (s *Session) LastSeen() time.Time { return s.lastSeen.Load() }

func (s *Session) close() {
	s.cancel()
	s.Controller.Close()
	_ = s.Surface.Close()
}

type Options struct {
	Locator   mapsync.StoreLocator
	Addresses mapsync.AddressResolver
	Provider  *services.PositionProvider
	IdleTTL   time.Duration
	Log       *zap.Logger
}

// Manager owns the live map sessions.
type Manager struct {
	opts Options
	log  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(opts Options) *Manager {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Provider == nil {
		opts.Provider = services.NewPositionProvider(services.DefaultPosition, 5*time.Second, opts.Log)
	}
	return &Manager{opts: opts, log: opts.Log, sessions: make(map[string]*Session)}
}

// Create starts a new session, locates the user through src and runs the
// first query cycle. The returned position is the default one when degraded.
func (m *Manager) Create(ctx context.Context, src ports.PositionSource) (*Session, domain.Position, bool, error) {
	id := uuid.NewString()
	log := m.log.With(zap.String("session", id))

	surface := mapsurface.NewWSSurface(log)
	ctrl := mapsync.New(mapsync.Options{
		Locator:   m.opts.Locator,
		Addresses: m.opts.Addresses,
		Surface:   surface,
		Log:       log,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(runCtx)

	s := &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		Controller: ctrl,
		Surface:    surface,
		cancel:     cancel,
	}
	s.Touch()

	pos, degraded, err := ctrl.Initialize(ctx, m.opts.Provider, src)
	if err != nil {
		s.close()
		return nil, domain.Position{}, false, fmt.Errorf("create session: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	obs.ActiveSessions.Inc()

	log.Info("session created",
		zap.Float64("lat", pos.Lat),
		zap.Float64("lon", pos.Lon),
		zap.Bool("degraded", degraded),
	)
	return s, pos, degraded, nil
}

// Get returns a live session and marks it active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}
	s.Touch()
	return s, nil
}

// Close stops and removes a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}
	s.close()
	obs.ActiveSessions.Dec()
	m.log.Info("session closed", zap.String("session", id))
	return nil
}

// SweepIdle closes sessions without activity for longer than the idle TTL.
// A session with an attached map surface counts as active.
func (m *Manager) SweepIdle(now time.Time) int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}

	var idle []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if s.Surface.Attached() {
			continue
		}
		if now.Sub(s.LastSeen()) > m.opts.IdleTTL {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if err := m.Close(id); err == nil {
			closed++
		}
	}
	if closed > 0 {
		m.log.Info("idle sessions swept", zap.Int("closed", closed))
	}
	return closed
}

// IDs returns the ids of all live sessions in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll stops every session; used on shutdown.
func (m *Manager) CloseAll() {
	for _, id := range m.IDs() {
		_ = m.Close(id)
	}
}
