// Package hub fetches processor assets from a Hugging Face compatible hub
// and pins their checksums in a local lock file.
package hub

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/example/go-document-tools/internal/errdefs"
)

// DefaultEndpoint is the public Hugging Face hub.
const DefaultEndpoint = "https://huggingface.co"

// LockFile is the checksum lock written next to the downloaded files.
const LockFile = "download-manifest.lock.json"

type DownloadOptions struct {
	Manifest Manifest
	// OutDir is the assets root; files land in OutDir/<repo>/<filename>.
	OutDir   string
	Endpoint string
	Token    string
	Client   *http.Client
	Stdout   io.Writer
}

type ErrAccessDenied struct {
	Repo string
	Msg  string
}

func (e *ErrAccessDenied) Error() string {
	if e.Msg != "" {
		return e.Msg
	}

	return fmt.Sprintf("access denied for %s", e.Repo)
}

type lockManifest struct {
	Repo      string                `json:"repo"`
	Generated string                `json:"generated"`
	Files     map[string]lockRecord `json:"files"`
}

type lockRecord struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// RepoDir is where the files of repo live under the assets root.
func RepoDir(outDir, repo string) string {
	return filepath.Join(outDir, filepath.FromSlash(repo))
}

// Download fetches every manifest file that is missing or does not match its
// expected checksum. Files without a pinned or locked checksum use the hub's
// sha256 metadata when present and are otherwise trusted on first download.
func Download(ctx context.Context, opts DownloadOptions) error {
	m := opts.Manifest
	if m.Repo == "" {
		return fmt.Errorf("%w: repo is required", errdefs.ErrInvalidArgument)
	}

	if opts.OutDir == "" {
		return fmt.Errorf("%w: out dir is required", errdefs.ErrInvalidArgument)
	}

	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}

	if opts.Client == nil {
		opts.Client = &http.Client{}
	}

	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	dir := RepoDir(opts.OutDir, m.Repo)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	lockPath := filepath.Join(dir, LockFile)
	lock := readLockManifest(lockPath)
	lock.Repo = m.Repo
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	for _, f := range m.Files {
		if f.Revision == "" {
			f.Revision = DefaultRevision
		}

		expected := strings.ToLower(f.SHA256)
		if expected == "" {
			if lr, ok := lock.Files[f.Filename]; ok && lr.Revision == f.Revision && isSHA256Hex(lr.SHA256) {
				expected = strings.ToLower(lr.SHA256)
			} else {
				sum, err := resolveChecksumFromMetadata(ctx, opts, f)
				if err != nil {
					return err
				}
				expected = sum
			}
		}

		localPath := filepath.Join(dir, filepath.FromSlash(f.Filename))
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("create local subdir: %w", err)
		}

		if expected != "" {
			ok, err := existingMatches(localPath, expected)
			if err != nil {
				return err
			}

			if ok {
				fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", f.Filename)
				lock.Files[f.Filename] = lockRecord{Revision: f.Revision, SHA256: expected}

				continue
			}
		}

		fmt.Fprintf(opts.Stdout, "download %s@%s -> %s\n", f.Filename, f.Revision, localPath)

		actual, err := downloadWithProgress(ctx, opts, f, localPath)
		if err != nil {
			return err
		}

		switch {
		case expected == "":
			fmt.Fprintf(opts.Stdout, "pinned %s (sha256=%s)\n", f.Filename, actual)
		case actual != expected:
			_ = os.Remove(localPath)
			return fmt.Errorf("checksum mismatch for %s: expected %s got %s", f.Filename, expected, actual)
		default:
			fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", f.Filename, actual)
		}

		lock.Files[f.Filename] = lockRecord{Revision: f.Revision, SHA256: actual}
	}

	if err := writeLockManifest(lockPath, lock); err != nil {
		return err
	}

	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)

	return nil
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("stat existing file: %w", err)
	}

	if fi.IsDir() {
		return false, fmt.Errorf("expected file at %s, found directory", path)
	}

	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}

	return actual == expected, nil
}

func downloadWithProgress(ctx context.Context, opts DownloadOptions, file File, outPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL(opts.Endpoint, opts.Manifest.Repo, file), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	setAuth(req, opts.Token)

	resp, err := opts.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, opts.Manifest.Repo, file, 299); err != nil {
		return "", err
	}

	tmp := outPath + ".tmp"

	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	mw := io.MultiWriter(fh, h)

	var written int64

	buf := make([]byte, 64*1024)
	total := resp.ContentLength
	lastPrint := time.Now()

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			wn, writeErr := mw.Write(buf[:n])
			if writeErr != nil {
				_ = fh.Close()
				_ = os.Remove(tmp)

				return "", fmt.Errorf("write temp file: %w", writeErr)
			}

			written += int64(wn)

			if time.Since(lastPrint) > 700*time.Millisecond {
				if total > 0 {
					pct := float64(written) * 100 / float64(total)
					fmt.Fprintf(opts.Stdout, "  progress: %.1f%% (%d/%d bytes)\n", pct, written, total)
				} else {
					fmt.Fprintf(opts.Stdout, "  progress: %d bytes\n", written)
				}

				lastPrint = time.Now()
			}
		}

		if readErr == io.EOF {
			break
		}

		if readErr != nil {
			_ = fh.Close()
			_ = os.Remove(tmp)

			return "", fmt.Errorf("download read failed: %w", readErr)
		}
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move temp file into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// resolveChecksumFromMetadata returns the sha256 advertised by the hub, or ""
// when the file is not LFS backed and the hub only exposes a git blob id.
func resolveChecksumFromMetadata(ctx context.Context, opts DownloadOptions, f File) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, resolveURL(opts.Endpoint, opts.Manifest.Repo, f), nil)
	if err != nil {
		return "", fmt.Errorf("build metadata request: %w", err)
	}
	setAuth(req, opts.Token)

	resp, err := opts.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata request failed for %s: %w", f.Filename, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, opts.Manifest.Repo, f, 399); err != nil {
		return "", err
	}

	for _, key := range []string{"X-Linked-Etag", "X-Repo-Commit", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v), nil
		}
	}

	return "", nil
}

func checkStatus(resp *http.Response, repo string, f File, maxOK int) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &ErrAccessDenied{
			Repo: repo,
			Msg:  fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", repo),
		}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s@%s in %s", errdefs.ErrNotFound, f.Filename, f.Revision, repo)
	case resp.StatusCode < 200 || resp.StatusCode > maxOK:
		return fmt.Errorf("request failed for %s: %s", f.Filename, resp.Status)
	}

	return nil
}

func resolveURL(endpoint, repo string, file File) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", strings.TrimRight(endpoint, "/"), repo, file.Revision, file.Filename)
}

func setAuth(req *http.Request, token string) {
	if token == "" {
		return
	}

	req.Header.Set("Authorization", "Bearer "+token)
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "\"")
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, "\"")

	return v
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func readLockManifest(path string) lockManifest {
	out := lockManifest{Files: map[string]lockRecord{}}

	b, err := os.ReadFile(path)
	if err != nil {
		return out
	}

	if err := json.Unmarshal(b, &out); err != nil {
		return lockManifest{Files: map[string]lockRecord{}}
	}

	if out.Files == nil {
		out.Files = map[string]lockRecord{}
	}

	return out
}

func writeLockManifest(path string, lock lockManifest) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}

	return nil
}
