package hub

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-document-tools/internal/errdefs"
)

// Verify checks every file pinned in repo's lock file against its sha256 and
// returns the number of verified files.
func Verify(outDir, repo string) (int, error) {
	dir := RepoDir(outDir, repo)
	lockPath := filepath.Join(dir, LockFile)

	if _, err := os.Stat(lockPath); err != nil {
		return 0, fmt.Errorf("%w: no lock file at %s", errdefs.ErrNotFound, lockPath)
	}

	lock := readLockManifest(lockPath)
	if len(lock.Files) == 0 {
		return 0, fmt.Errorf("%w: lock file %s pins no files", errdefs.ErrInvalidArgument, lockPath)
	}

	for name, rec := range lock.Files {
		ok, err := existingMatches(filepath.Join(dir, filepath.FromSlash(name)), rec.SHA256)
		if err != nil {
			return 0, err
		}

		if !ok {
			return 0, fmt.Errorf("checksum mismatch for %s: expected %s", name, rec.SHA256)
		}
	}

	return len(lock.Files), nil
}
