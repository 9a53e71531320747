package eventstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/agentcore/internal/storage"
)

// Store is the event store (C1). It persists the append-only log through a
// generic file-backed key/value store and keeps per-session sequence
// counters serialized with an in-process mutex, since storage.Storage's
// flock only serializes at the single-file granularity.
type Store struct {
	storage *storage.Storage
	bus     *Bus

	mu      sync.Mutex
	seqLock map[string]*sync.Mutex
}

// New creates a Store backed by basePath for durable storage.
func New(basePath string) *Store {
	return &Store{
		storage: storage.New(basePath),
		bus:     NewBus(),
		seqLock: make(map[string]*sync.Mutex),
	}
}

// Bus returns the store's event bus so components can subscribe to
// newly-appended events without polling the log.
func (s *Store) Bus() *Bus { return s.bus }

func (s *Store) sessionMutex(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.seqLock[sessionID]
	if !ok {
		m = &sync.Mutex{}
		s.seqLock[sessionID] = m
	}
	return m
}

// NextSeqNo returns the sequence number that the next appended event for
// sessionID will receive, without reserving it. Callers racing on
// AppendEvent still get a gap-free sequence because AppendEvent re-derives
// the number itself while holding the per-session mutex.
func (s *Store) NextSeqNo(ctx context.Context, sessionID string) (uint64, error) {
	var head struct {
		Next uint64 `json:"next"`
	}
	err := s.storage.Get(ctx, []string{"event-head", sessionID}, &head)
	if err != nil {
		if err == storage.ErrNotFound {
			return 1, nil
		}
		return 0, err
	}
	return head.Next, nil
}

// AppendEvent assigns the next gap-free sequence number to env, persists it,
// and publishes it on the bus. A write failure aborts the whole call: no
// partial state is left, and the caller's sequence number is not advanced.
func (s *Store) AppendEvent(ctx context.Context, sessionID string, kind Kind, timestamp int64, data any) (Envelope, error) {
	lock := s.sessionMutex(sessionID)
	lock.Lock()
	defer lock.Unlock()

	seq, err := s.NextSeqNo(ctx, sessionID)
	if err != nil {
		return Envelope{}, fmt.Errorf("next seq no: %w", err)
	}

	env := Envelope{
		SessionID: sessionID,
		SeqNo:     seq,
		Timestamp: timestamp,
		Kind:      kind,
		Data:      data,
	}

	key := []string{"event", sessionID, fmt.Sprintf("%020d", seq)}
	if err := s.storage.Put(ctx, key, env); err != nil {
		return Envelope{}, fmt.Errorf("append event: %w", err)
	}

	head := struct {
		Next uint64 `json:"next"`
	}{Next: seq + 1}
	if err := s.storage.Put(ctx, []string{"event-head", sessionID}, head); err != nil {
		_ = s.storage.Delete(ctx, key)
		return Envelope{}, fmt.Errorf("advance seq head: %w", err)
	}

	s.bus.Publish(env)
	return env, nil
}

// loadEvents returns every event for a session in sequence order, up to and
// including maxSeq (0 means unbounded).
func (s *Store) loadEvents(ctx context.Context, sessionID string, maxSeq uint64) ([]Envelope, error) {
	keys, err := s.storage.List(ctx, []string{"event", sessionID})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	events := make([]Envelope, 0, len(keys))
	for _, k := range keys {
		var raw struct {
			SessionID string `json:"sessionID"`
			SeqNo     uint64 `json:"seqNo"`
			Timestamp int64  `json:"timestamp"`
			Kind      Kind   `json:"kind"`
			Data      any    `json:"data"`
		}
		if err := s.storage.Get(ctx, []string{"event", sessionID, k}, &raw); err != nil {
			return nil, fmt.Errorf("load event %s: %w", k, err)
		}
		if maxSeq != 0 && raw.SeqNo > maxSeq {
			continue
		}
		typed, err := decodeData(raw.Kind, raw.Data)
		if err != nil {
			return nil, fmt.Errorf("decode event %s data: %w", k, err)
		}
		events = append(events, Envelope{
			SessionID: raw.SessionID,
			SeqNo:     raw.SeqNo,
			Timestamp: raw.Timestamp,
			Kind:      raw.Kind,
			Data:      typed,
		})
	}
	return events, nil
}

// LoadSession returns the current projection for a session.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*Projection, error) {
	events, err := s.loadEvents(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	return RebuildFromEvents(sessionID, events), nil
}

// ListSessions returns every known session id.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, []string{"event"})
}

// TryAcquireSessionLock and ReleaseSessionLock delegate to Store's lock
// table; see lock.go.
func (s *Store) TryAcquireSessionLock(sessionID, holder string) bool {
	return acquireLock(s.storage, sessionID, holder)
}

func (s *Store) ReleaseSessionLock(sessionID, holder string) {
	releaseLock(s.storage, sessionID, holder)
}

// ForkSession copies sessionID's events up to its latest sequence number
// into a fresh session id. Projections at the fork point are identical by
// construction: the new log holds the same events, in the same order and
// with the same sequence numbers, re-encoded under the new id, so replaying
// it yields the same intermediate state. No lock is taken on the parent: an
// event appended to it while the fork is copying may or may not be included.
func (s *Store) ForkSession(ctx context.Context, sessionID string) (string, error) {
	events, err := s.loadEvents(ctx, sessionID, 0)
	if err != nil {
		return "", fmt.Errorf("fork: load parent events: %w", err)
	}

	newID := ulid.Make().String()
	for _, env := range events {
		env.SessionID = newID
		key := []string{"event", newID, fmt.Sprintf("%020d", env.SeqNo)}
		if err := s.storage.Put(ctx, key, env); err != nil {
			return "", fmt.Errorf("fork: copy event %d: %w", env.SeqNo, err)
		}
	}

	var nextSeq uint64 = 1
	if len(events) > 0 {
		nextSeq = events[len(events)-1].SeqNo + 1
	}
	head := struct {
		Next uint64 `json:"next"`
	}{Next: nextSeq}
	if err := s.storage.Put(ctx, []string{"event-head", newID}, head); err != nil {
		return "", fmt.Errorf("fork: write seq head: %w", err)
	}

	return newID, nil
}
