package api

import (
	"context"
	"time"

	"github.com/gofrs/flock"

	"github.com/mnemo-dev/mnemo/internal/apierrors"
)

// lockForRead acquires a shared lock on path with the given timeout,
// returning an unlock func the caller must invoke. Ported from the
// teacher's internal/embed.FileLock (exclusive Lock/Unlock around a
// sidecar .download.lock file) and generalized to a shared lock taken
// directly on the target file, per spec.md §6: "reads use an
// OS-appropriate lock (shared lock on POSIX, byte-lock on Windows)
// with the timeout from §5." gofrs/flock abstracts that OS difference
// for us; RLock is POSIX flock(LOCK_SH) and a Windows byte-range lock
// under the hood.
func lockForRead(path string, timeout time.Duration) (func(), error) {
	fl := flock.New(path)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := fl.TryRLockContext(ctx, 20*time.Millisecond)
	if err != nil || !locked {
		return nil, apierrors.New(apierrors.CodeLockTimeout, "timed out acquiring a read lock on "+path, err)
	}
	return func() { _ = fl.Unlock() }, nil
}
