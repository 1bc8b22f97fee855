// Package pdf extracts plain text from PDF files.
package pdf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/aide/pkg/errorsx"
	lpdf "github.com/ledongthuc/pdf"
)

var ErrNotFound = errors.New("pdf not found")

// Loader resolves relative paths against BaseDir.
type Loader struct {
	BaseDir string
	// MaxChars caps the returned text. Zero means no cap.
	MaxChars int
}

func NewLoader(baseDir string, maxChars int) *Loader {
	return &Loader{BaseDir: baseDir, MaxChars: maxChars}
}

// Resolve returns the absolute location of path.
func (l *Loader) Resolve(path string) string {
	path = strings.Trim(strings.TrimSpace(path), `"'`)
	if filepath.IsAbs(path) || l.BaseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(l.BaseDir, path)
}

// Load returns the text of every page, pages separated by newlines.
func (l *Loader) Load(path string) (string, error) {
	full := l.Resolve(path)
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errorsx.Wrap(fmt.Errorf("%w: %s", ErrNotFound, full), errorsx.ReasonPDFLoad)
		}
		return "", errorsx.Wrap(err, errorsx.ReasonPDFLoad)
	}
	text, err := extract(full)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("read %s: %w", full, err), errorsx.ReasonPDFLoad)
	}
	if l.MaxChars > 0 {
		if r := []rune(text); len(r) > l.MaxChars {
			text = string(r[:l.MaxChars])
		}
	}
	return text, nil
}

func extract(path string) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	f, r, err := lpdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(s))
	}
	return strings.Join(pages, "\n"), nil
}
