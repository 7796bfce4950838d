package api

import (
	"context"
	"encoding/base64"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/render/sink"
)

// Spool moves rendered pages through uniquely named PNG files on disk and
// returns them base64 encoded. Files never outlive the call that wrote them.
type Spool struct {
	dir     string
	workers int
}

// NewSpool creates a spool in dir, creating it if needed. An empty dir uses
// a subdirectory of the system temporary directory.
func NewSpool(dir string, workers int) (*Spool, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "handwrite-spool")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create spool directory %s", dir)
	}
	return &Spool{dir: dir, workers: workers}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string { return s.dir }

// Encode writes each page as PNG, reads it back and base64 encodes it.
// The result maps the page index, as a decimal string, to its encoding.
func (s *Spool) Encode(ctx context.Context, pages []*image.RGBA) (map[string]string, error) {
	encoded, err := sink.EncodeAll(ctx, sink.FormatPNG, pages, s.workers, s.roundTrip)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(encoded))
	for i, b := range encoded {
		out[strconv.Itoa(i)] = string(b)
	}
	return out, nil
}

func (s *Spool) roundTrip(img image.Image) ([]byte, error) {
	data, err := sink.PNG(img)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, uuid.NewString()+".png")
	defer os.Remove(path)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "write page")
	}
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read page")
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(out, data)
	return out, nil
}
