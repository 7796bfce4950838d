// Package sink encodes rendered pages for storage and transport.
//
// [PNG] encodes a single page. [PDF] bundles all pages of a render into one
// document through github.com/tdewolff/canvas, sizing each PDF page so the
// image prints at the given resolution. [EncodeAll] runs an encoder over
// many pages in parallel and keeps their order.
package sink

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"time"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/observability"
)

// Output formats.
const (
	FormatPNG = "png"
	FormatPDF = "pdf"
)

const mmPerInch = 25.4

var pngEncoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// PNG encodes img as PNG.
func PNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode png")
	}
	return buf.Bytes(), nil
}

// PDF writes pages into a single PDF document, one page per image. Each PDF
// page measures the image size divided by dpi.
func PDF(pages []image.Image, dpi float64) ([]byte, error) {
	if len(pages) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no pages to write")
	}
	if dpi <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidParams, "dpi must be positive, got %v", dpi)
	}
	dpmm := dpi / mmPerInch

	var buf bytes.Buffer
	var writer *pdf.PDF
	for _, img := range pages {
		b := img.Bounds()
		w, h := float64(b.Dx())/dpmm, float64(b.Dy())/dpmm
		if writer == nil {
			writer = pdf.New(&buf, w, h, nil)
			writer.SetInfo("", "", "", "", "handwrite")
		} else {
			writer.NewPage(w, h)
		}
		c := canvas.New(w, h)
		ctx := canvas.NewContext(c)
		ctx.DrawImage(0, 0, img, canvas.DPMM(dpmm))
		c.RenderTo(writer)
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "write pdf")
	}
	return buf.Bytes(), nil
}

// EncodeAll encodes pages with fn using up to limit goroutines (no limit when
// limit <= 0). The result has one entry per page, in page order. The format
// only labels the encode for the render hooks.
func EncodeAll[T image.Image](ctx context.Context, format string, pages []T, limit int, fn func(image.Image) ([]byte, error)) ([][]byte, error) {
	start := time.Now()
	out := make([][]byte, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, p := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := fn(p)
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	err := g.Wait()

	size := 0
	for _, b := range out {
		size += len(b)
	}
	observability.Render().OnEncode(ctx, format, size, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EncodePDF bundles pages into a PDF and reports the encode to the render hooks.
func EncodePDF[T image.Image](ctx context.Context, pages []T, dpi float64) ([]byte, error) {
	start := time.Now()
	imgs := make([]image.Image, len(pages))
	for i, p := range pages {
		imgs[i] = p
	}
	data, err := PDF(imgs, dpi)
	observability.Render().OnEncode(ctx, FormatPDF, len(data), time.Since(start), err)
	return data, err
}
