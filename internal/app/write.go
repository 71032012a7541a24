package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/alessandrodindinelli/aws-cdk-template/internal/template"
)

// ManifestFile is the name of the manifest in an output directory.
const ManifestFile = "manifest.json"

// writeWorkers bounds the templates rendered at once.
const writeWorkers = 4

// TemplateFile returns the file name of a stack template.
func TemplateFile(stack, format string) string {
	ext := "json"
	if format == "yaml" {
		ext = "yaml"
	}
	return stack + ".template." + ext
}

// Write renders every template and the manifest into dir and returns the
// written paths, templates first in deploy order. The manifest is written
// last, only once every template is on disk.
func (a *Assembly) Write(dir, format string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	files := make([]string, len(a.Units))
	var g errgroup.Group
	g.SetLimit(writeWorkers)
	for i, u := range a.Units {
		g.Go(func() error {
			data, err := template.Marshal(u.Template, format)
			if err != nil {
				return fmt.Errorf("rendering %s: %w", u.Name, err)
			}
			path := filepath.Join(dir, TemplateFile(u.Name, format))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			files[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(a.Manifest(format), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rendering manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return append(files, path), nil
}
