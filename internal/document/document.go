// Package document classifies document files by extension.
package document

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/example/go-document-tools/internal/errdefs"
)

// ImageExtensions are the accepted image file extensions, without the dot.
var ImageExtensions = []string{"ai", "bmp", "eps", "gif", "jpg", "jpeg", "png", "psd", "raw", "svg", "tif", "tiff", "webp"}

// DocumentExtensions are ImageExtensions plus pdf.
var DocumentExtensions = append(slices.Clone(ImageExtensions), "pdf")

type Kind int

const (
	// Any is a file whose extension was not checked.
	Any Kind = iota
	Image
	PDF
)

func (k Kind) String() string {
	switch k {
	case Image:
		return "ImageDocument"
	case PDF:
		return "PDFDocument"
	default:
		return "Document"
	}
}

// Document is a file on disk identified by its name and extension.
// Documents are comparable; two documents built from the same path are equal.
type Document struct {
	Path      string
	File      string
	Extension string
	Kind      Kind
}

// New returns an unchecked Document for path.
func New(path string) Document {
	file := filepath.Base(filepath.FromSlash(path))

	ext := file
	if i := strings.LastIndexByte(file, '.'); i >= 0 {
		ext = file[i+1:]
	}

	return Document{Path: path, File: file, Extension: ext, Kind: Any}
}

// Open classifies path as an image or PDF document. Extensions compare
// case-insensitively.
func Open(path string) (Document, error) {
	d := New(path)

	switch ext := strings.ToLower(d.Extension); {
	case ext == "pdf":
		d.Kind = PDF
	case slices.Contains(ImageExtensions, ext):
		d.Kind = Image
	default:
		return Document{}, fmt.Errorf("%w: %s is not a valid extension; valid extensions are: %s",
			errdefs.ErrInvalidArgument, d.Extension, strings.Join(DocumentExtensions, ", "))
	}

	return d, nil
}

// NewImage returns an image Document or an error naming the valid image extensions.
func NewImage(path string) (Document, error) {
	d, err := Open(path)
	if err != nil {
		return Document{}, err
	}

	if d.Kind != Image {
		return Document{}, fmt.Errorf("%w: %s is not a valid image extension; valid extensions are: %s",
			errdefs.ErrInvalidArgument, d.Extension, strings.Join(ImageExtensions, ", "))
	}

	return d, nil
}

// NewPDF returns a PDF Document.
func NewPDF(path string) (Document, error) {
	d, err := Open(path)
	if err != nil {
		return Document{}, err
	}

	if d.Kind != PDF {
		return Document{}, fmt.Errorf("%w: %s is not a valid pdf extension; valid extension is: pdf",
			errdefs.ErrInvalidArgument, d.Extension)
	}

	return d, nil
}

func (d Document) String() string { return d.File }

// GoString renders the document as Kind(file='...', extension='...').
func (d Document) GoString() string {
	if d.Kind == Any {
		return fmt.Sprintf("%s(file='%s')", d.Kind, d.File)
	}

	return fmt.Sprintf("%s(file='%s', extension='%s')", d.Kind, d.File, d.Extension)
}
