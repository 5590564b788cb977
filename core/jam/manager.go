package jam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"JamFM/core/event"
	"JamFM/logger"
	"JamFM/model"
)

// SessionStore persists session rows.
type SessionStore interface {
	SaveSession(ctx context.Context, session *model.JamSession) error
}

// QueueStore persists queue entries.
type QueueStore interface {
	SaveEntry(ctx context.Context, entry *model.QueueEntry) error
}

// ReactionStore persists reactions.
type ReactionStore interface {
	SaveReaction(ctx context.Context, reaction *model.SessionReaction) error
}

// Stores bundles the persistence backends. Any field may be nil, in which
// case that concern is memory-only.
type Stores struct {
	Sessions  SessionStore
	Queue     QueueStore
	Reactions ReactionStore
}

// Manager owns the live sessions, partitioned by session ID so unrelated
// sessions never contend. It also runs the single ordered writer that
// flushes session/queue mutations to the stores: mutations stay in-memory
// fast paths and never block on the database.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session // session ID -> session
	byChannel map[string]*Session // "guild:channel" -> active session

	pub          event.Publisher
	stores       Stores
	defaultLimit int

	persistCh chan func(ctx context.Context)
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a session manager and starts its persistence writer.
func NewManager(pub event.Publisher, stores Stores, defaultLimit int) *Manager {
	m := &Manager{
		sessions:     make(map[string]*Session),
		byChannel:    make(map[string]*Session),
		pub:          pub,
		stores:       stores,
		defaultLimit: defaultLimit,
		persistCh:    make(chan func(ctx context.Context), 256),
		done:         make(chan struct{}),
	}
	go m.runPersister()
	return m
}

// Close drains and stops the persistence writer.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.persistCh)
		<-m.done
	})
}

// runPersister applies persistence ops in submission order, which keeps the
// durable rows consistent with the in-memory linearization.
func (m *Manager) runPersister() {
	defer close(m.done)
	for op := range m.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		op(ctx)
		cancel()
	}
}

// enqueuePersist hands an op to the writer without ever blocking a session
// mutation; under sustained backpressure the op is dropped and logged.
func (m *Manager) enqueuePersist(op func(ctx context.Context)) {
	select {
	case m.persistCh <- op:
	default:
		logger.Warn("persistence queue full, dropping write")
	}
}

func channelKey(guildID, channelID int64) string {
	return fmt.Sprintf("%d:%d", guildID, channelID)
}

// Open creates the active session for a (guild, channel) pair. Each pair
// holds at most one active session at a time.
func (m *Manager) Open(guildID, channelID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := channelKey(guildID, channelID)
	if _, exists := m.byChannel[key]; exists {
		return nil, ErrActiveSessionExists
	}

	session := newSession(guildID, channelID, m.defaultLimit, m.pub, m.enqueuePersist, m.stores)
	m.sessions[session.ID()] = session
	m.byChannel[key] = session

	// Not shared yet, so touching its fields without the session lock is fine.
	session.persistSession()
	if m.pub != nil {
		m.pub.Publish(session.ID(), event.TypeSessionOpened, nil)
	}

	logger.Info("session opened",
		logger.String("session", session.ID()),
		logger.Int64("guild", guildID),
		logger.Int64("channel", channelID))
	return session, nil
}

// Get looks a live session up by ID.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// GetByChannel looks the active session up for a (guild, channel) pair.
func (m *Manager) GetByChannel(guildID, channelID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.byChannel[channelKey(guildID, channelID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// End terminates a session and releases its channel slot. The session row
// stays in the store as an archive; the live partition is dropped.
func (m *Manager) End(sessionID string) error {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	delete(m.byChannel, channelKey(session.guildID, session.channelID))
	m.mu.Unlock()

	if err := session.End(); err != nil {
		return err
	}

	logger.Info("session ended", logger.String("session", sessionID))
	return nil
}
