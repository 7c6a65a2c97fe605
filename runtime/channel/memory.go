package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/botui/chatflow/runtime"
)

var _ Channel = (*Memory)(nil)

const subscriberBuffer = 16

type subscriber struct {
	id        string
	ch        chan runtime.ChatConfig
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Memory keeps the last snapshot in process and fans it out to subscribers.
// With a Store the snapshot is written through and loaded on first Get.
type Memory struct {
	key   string
	l     *slog.Logger
	store Store

	mu        sync.RWMutex
	value     *runtime.ChatConfig
	loaded    bool
	subs      map[string]*subscriber
	closed    bool
	closeOnce sync.Once
}

type Option func(*Memory)

// WithStore persists every snapshot through store.
func WithStore(store Store) Option {
	return func(m *Memory) { m.store = store }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Memory) { m.l = l }
}

func NewMemory(key string, opts ...Option) *Memory {
	if key == "" {
		key = DefaultKey
	}
	m := &Memory{
		key:  key,
		l:    slog.Default(),
		subs: make(map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Key() string {
	return m.key
}

func (m *Memory) Get(ctx context.Context) (runtime.ChatConfig, bool, error) {
	m.mu.RLock()
	if m.value != nil || m.loaded || m.store == nil {
		defer m.mu.RUnlock()
		if m.value == nil {
			return runtime.ChatConfig{}, false, nil
		}
		return m.value.Clone(), true, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(ctx); err != nil {
		return runtime.ChatConfig{}, false, err
	}
	if m.value == nil {
		return runtime.ChatConfig{}, false, nil
	}
	return m.value.Clone(), true, nil
}

func (m *Memory) Set(ctx context.Context, conf runtime.ChatConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.setLocked(ctx, conf)
	return err
}

// Update applies fn to the current snapshot and stores the result while
// holding the write lock, so concurrent updates are never lost.
func (m *Memory) Update(ctx context.Context, fn func(runtime.ChatConfig) runtime.ChatConfig) (runtime.ChatConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return runtime.ChatConfig{}, ErrClosed
	}
	if err := m.loadLocked(ctx); err != nil {
		return runtime.ChatConfig{}, err
	}

	var current runtime.ChatConfig
	if m.value != nil {
		current = m.value.Clone()
	}
	return m.setLocked(ctx, fn(current))
}

// loadLocked reads the persisted snapshot once. m.mu must be held for writing.
func (m *Memory) loadLocked(ctx context.Context) error {
	if m.loaded || m.value != nil || m.store == nil {
		return nil
	}
	conf, ok, err := m.store.Load(ctx, m.key)
	if err != nil {
		return fmt.Errorf("loading snapshot %q: %w", m.key, err)
	}
	m.loaded = true
	if ok {
		m.value = &conf
	}
	return nil
}

func (m *Memory) setLocked(ctx context.Context, conf runtime.ChatConfig) (runtime.ChatConfig, error) {
	if m.closed {
		return runtime.ChatConfig{}, ErrClosed
	}
	snapshot := conf.Clone()
	snapshot.OnStart, snapshot.OnClose = nil, nil

	if m.store != nil {
		if err := m.store.Save(ctx, m.key, snapshot); err != nil {
			return runtime.ChatConfig{}, fmt.Errorf("saving snapshot %q: %w", m.key, err)
		}
	}
	m.value = &snapshot
	m.loaded = true

	for _, sub := range m.subs {
		m.deliver(sub, snapshot)
	}
	return snapshot.Clone(), nil
}

// deliver replaces the oldest pending snapshot when the subscriber is behind.
func (m *Memory) deliver(sub *subscriber, conf runtime.ChatConfig) {
	for {
		select {
		case sub.ch <- conf.Clone():
			return
		default:
		}
		select {
		case <-sub.ch:
			m.l.Debug("Dropped stale snapshot for slow subscriber",
				"channel", m.key,
				"subscriber", sub.id)
		default:
		}
	}
}

func (m *Memory) Subscribe() (<-chan runtime.ChatConfig, func()) {
	sub := &subscriber{
		id: uuid.New().String(),
		ch: make(chan runtime.ChatConfig, subscriberBuffer),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		sub.close()
		return sub.ch, func() {}
	}
	m.subs[sub.id] = sub

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, sub.id)
		m.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Close ends every subscription. Later Sets fail with ErrClosed.
func (m *Memory) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed = true
		for id, sub := range m.subs {
			sub.close()
			delete(m.subs, id)
		}
	})
}
