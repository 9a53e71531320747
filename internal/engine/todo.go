package engine

import (
	"context"
	"time"

	"github.com/opencode-ai/agentcore/internal/eventstore"
)

// EventTodoStore implements toolhost.TodoStore over the event store: a
// session's todo list is whatever TodoListUpdated event was appended last,
// read back through the same projection every other component uses.
type EventTodoStore struct {
	store *eventstore.Store
}

func NewEventTodoStore(store *eventstore.Store) *EventTodoStore {
	return &EventTodoStore{store: store}
}

func (s *EventTodoStore) Get(ctx context.Context, sessionID string) ([]eventstore.TodoItem, error) {
	proj, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return proj.Todos, nil
}

func (s *EventTodoStore) Set(ctx context.Context, sessionID string, items []eventstore.TodoItem) error {
	_, err := s.store.AppendEvent(ctx, sessionID, eventstore.KindTodoListUpdated, time.Now().UnixMilli(), eventstore.TodoListUpdatedData{Items: items})
	return err
}
