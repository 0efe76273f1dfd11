package hub

import (
	"fmt"

	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/processor"
)

// DefaultRevision is the branch files are resolved against when a manifest
// does not pin a commit.
const DefaultRevision = "main"

// Manifest lists the files to fetch from one hub repository.
type Manifest struct {
	Repo  string `json:"repo"`
	Files []File `json:"files"`
}

// File is one repository file. An empty SHA256 is resolved from hub
// metadata or trusted on first download and then pinned in the lock file.
type File struct {
	Filename string `json:"filename"`
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

var defaultModels = map[string]processor.Kind{
	"microsoft/layoutlmv2-base-uncased":  processor.LayoutLMv2,
	"microsoft/layoutlmv2-large-uncased": processor.LayoutLMv2,
	"microsoft/layoutlmv3-base":          processor.LayoutLMv3,
	"microsoft/layoutlmv3-large":         processor.LayoutLMv3,
	"microsoft/layoutxlm-base":           processor.LayoutXLM,
}

// ProcessorManifest returns the tokenizer assets the processor of kind loads
// for repo, resolved at revision (DefaultRevision when empty).
func ProcessorManifest(repo string, kind processor.Kind, revision string) (Manifest, error) {
	if repo == "" {
		return Manifest{}, fmt.Errorf("%w: repo is required", errdefs.ErrInvalidArgument)
	}

	names := kind.AssetFiles()
	if len(names) == 0 {
		return Manifest{}, fmt.Errorf("%w: no processor assets for %s", errdefs.ErrNotFound, kind)
	}

	if revision == "" {
		revision = DefaultRevision
	}

	m := Manifest{Repo: repo, Files: make([]File, len(names))}
	for i, name := range names {
		m.Files[i] = File{Filename: name, Revision: revision}
	}

	return m, nil
}

// KnownKind reports the processor kind of a well-known LayoutLM family repo.
func KnownKind(repo string) (processor.Kind, bool) {
	kind, ok := defaultModels[repo]
	return kind, ok
}

// KnownManifest returns the manifest of a well-known LayoutLM family repo.
func KnownManifest(repo string) (Manifest, error) {
	kind, ok := KnownKind(repo)
	if !ok {
		return Manifest{}, fmt.Errorf("%w: no known processor for repo %q", errdefs.ErrNotFound, repo)
	}

	return ProcessorManifest(repo, kind, "")
}
