package plugins

import (
	"context"

	"github.com/harunnryd/aide/pkg/pdf"
)

type PDF struct {
	loader *pdf.Loader
}

func NewPDF(loader *pdf.Loader) *PDF { return &PDF{loader: loader} }

func (*PDF) Name() string { return "pdf" }

func (p *PDF) Tools() []Tool {
	return []Tool{{
		Tool: llmTool("load_pdf", "Load a PDF file and return its text content.", []string{"path"}, map[string]any{
			"path": map[string]any{"type": "string", "description": "File path, relative to the documents directory."},
		}),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, err := requiredString(args, "path")
			if err != nil {
				return "", err
			}
			return p.loader.Load(path)
		},
	}}
}
