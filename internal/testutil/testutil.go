// Package testutil provides shared fixtures and skip helpers for tests.
//
// Skip helpers call t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestRealTokenizer(t *testing.T) {
//	    dir := testutil.RequireProcessorAssets(t, "microsoft/layoutxlm-base", "sentencepiece.bpe.model")
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// AssetsDirEnv names the environment variable that points at downloaded
// processor assets.
const AssetsDirEnv = "DOCTOOLS_ASSETS_DIR"

// RequireProcessorAssets skips the test unless every file exists under
// $DOCTOOLS_ASSETS_DIR/<model>/. It returns the assets root.
func RequireProcessorAssets(tb testing.TB, model string, files ...string) string {
	tb.Helper()

	root := os.Getenv(AssetsDirEnv)
	if root == "" {
		tb.Skipf("processor assets not configured; set %s after `doctools processor download`", AssetsDirEnv)
		return ""
	}

	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(model), f)
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("processor asset %q not available: %v", p, err)
			return ""
		}
	}

	return root
}
