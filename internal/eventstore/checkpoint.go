package eventstore

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// RecordCheckpoint appends a CheckpointCreated event. The tool-use loop calls
// this before executing a file-mutating tool so a revert can always land on
// a known-good commit plus a concrete file list, regardless of what the
// tool subsequently does.
func (s *Store) RecordCheckpoint(ctx context.Context, sessionID, commit string, files []string, now int64) (string, error) {
	checkpointID := ulid.Make().String()
	_, err := s.AppendEvent(ctx, sessionID, KindCheckpointCreated, now, CheckpointCreatedData{
		CheckpointID: checkpointID,
		Commit:       commit,
		Files:        files,
	})
	if err != nil {
		return "", err
	}
	return checkpointID, nil
}

// RecordWorkspaceBranchChanged appends a WorkspaceBranchChanged event to a
// single session's log. A workspace's VCS watcher calls this once per
// session bound to the workspace it's watching, since a branch change is a
// workspace-level fact, not something any one session log owns.
func (s *Store) RecordWorkspaceBranchChanged(ctx context.Context, sessionID, branch string, now int64) error {
	_, err := s.AppendEvent(ctx, sessionID, KindWorkspaceBranchChanged, now, WorkspaceBranchChangedData{Branch: branch})
	return err
}
