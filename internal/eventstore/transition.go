package eventstore

import (
	"context"

	"github.com/opencode-ai/agentcore/internal/apperror"
)

// TransitionSession validates from->to against the declared state graph and,
// if permitted, appends SessionStateChanged. An invalid transition is fatal
// for the calling operation and never reaches the log.
func (s *Store) TransitionSession(ctx context.Context, sessionID string, from, to SessionStatus, now int64) error {
	if !CanTransition(from, to) {
		return apperror.New(apperror.KindSessionStateInvalidTransition,
			string(from)+" -> "+string(to)+" is not a declared transition")
	}
	_, err := s.AppendEvent(ctx, sessionID, KindSessionStateChanged, now, SessionStateChangedData{From: from, To: to})
	return err
}
