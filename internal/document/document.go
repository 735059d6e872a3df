package document

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/spigell/resume-match/internal/apierr"
)

const (
	// MaxSize mirrors the upload limit of the scoring service.
	MaxSize = 10 << 20

	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain"
)

// Document is the file handed to Upload. It is never modified after Open.
type Document struct {
	Name        string
	ContentType string
	Content     []byte
	// Pages is set for PDF files only.
	Pages int
}

// Open reads a resume from disk and checks it is something the service can parse.
func Open(path string) (*Document, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, apierr.Validation("a resume file is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, apierr.Validation(fmt.Sprintf("resume file %q is not readable", path))
	}
	if info.IsDir() {
		return nil, apierr.Validation(fmt.Sprintf("resume file %q is a directory", path))
	}
	if info.Size() == 0 {
		return nil, apierr.Validation(fmt.Sprintf("resume file %q is empty", path))
	}
	if info.Size() > MaxSize {
		return nil, apierr.Validation(fmt.Sprintf("resume file %q exceeds %d bytes", path, MaxSize))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.Validation(fmt.Sprintf("resume file %q is not readable", path))
	}

	doc := &Document{
		Name:        filepath.Base(path),
		ContentType: detectContentType(path, content),
		Content:     content,
	}

	if doc.ContentType == ContentTypePDF {
		pages, err := countPages(path)
		if err != nil {
			return nil, apierr.Validation(fmt.Sprintf("resume file %q is not a readable PDF: %v", path, err))
		}
		doc.Pages = pages
	}

	return doc, nil
}

// New wraps in-memory content, mostly for tests and piped input.
func New(name string, content []byte) *Document {
	return &Document{
		Name:        name,
		ContentType: detectContentType(name, content),
		Content:     content,
	}
}

func (d *Document) Size() int {
	if d == nil {
		return 0
	}
	return len(d.Content)
}

func detectContentType(name string, content []byte) string {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return ContentTypePDF
	}
	if http.DetectContentType(content) == ContentTypePDF {
		return ContentTypePDF
	}
	return ContentTypeText
}

func countPages(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	pages := r.NumPage()
	if pages == 0 {
		return 0, fmt.Errorf("no pages found")
	}

	return pages, nil
}
