package eventstore

import (
	"os"
	"sync"
	"syscall"

	"github.com/opencode-ai/agentcore/internal/storage"
)

// lockFileTable tracks open lock file descriptors by session id so
// releaseLock can find the fd a prior acquireLock call opened.
type lockFileTable struct {
	mu    sync.Mutex
	files map[string]*os.File
}

func (t *lockFileTable) set(sessionID string, f *os.File) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.files == nil {
		t.files = make(map[string]*os.File)
	}
	t.files[sessionID] = f
}

func (t *lockFileTable) get(sessionID string) (*os.File, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[sessionID]
	return f, ok
}

func (t *lockFileTable) delete(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, sessionID)
}

var lockFiles = &lockFileTable{}

// acquireLock implements try_acquire_session_lock: advisory, single-holder,
// non-blocking. The holder identity is written into the lock file so a
// diagnostic read can report who holds a stuck lock.
func acquireLock(s *storage.Storage, sessionID, holder string) bool {
	path := lockFilePath(s, sessionID)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return false
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return false
	}
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(holder), 0)
	// The fd stays open while the lock is held; flock is released on
	// process exit or by releaseLock, which finds the fd in lockFiles by
	// session id alone (the holder string is not checked on release).
	lockFiles.set(sessionID, f)
	return true
}

func releaseLock(s *storage.Storage, sessionID, holder string) {
	f, ok := lockFiles.get(sessionID)
	if !ok {
		return
	}
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
	os.Remove(lockFilePath(s, sessionID))
	lockFiles.delete(sessionID)
}

func lockFilePath(s *storage.Storage, sessionID string) string {
	return s.BasePath() + "/session-lock-" + sessionID + ".lock"
}
