package cli

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/matzehuels/handwrite/pkg/render/sink"
)

// writeRender writes pages in format next to base and returns the paths
// written. PNG pages are numbered from 1; PDF output is a single file.
func writeRender(ctx context.Context, base, format string, pages []*image.RGBA, dpi float64, workers int) ([]string, error) {
	switch format {
	case sink.FormatPDF:
		data, err := sink.EncodePDF(ctx, pages, dpi)
		if err != nil {
			return nil, err
		}
		path := base + ".pdf"
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		return []string{path}, nil

	default:
		encoded, err := sink.EncodeAll(ctx, sink.FormatPNG, pages, workers, sink.PNG)
		if err != nil {
			return nil, err
		}
		paths := make([]string, len(encoded))
		for i, data := range encoded {
			paths[i] = pagePath(base, i, len(encoded))
			if err := os.WriteFile(paths[i], data, 0o644); err != nil {
				return nil, fmt.Errorf("write %s: %w", paths[i], err)
			}
		}
		return paths, nil
	}
}

// pagePath names page i of n. A single page keeps the bare base name.
func pagePath(base string, i, n int) string {
	if n == 1 {
		return base + ".png"
	}
	return fmt.Sprintf("%s-%d.png", base, i+1)
}
