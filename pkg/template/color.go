package template

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/matzehuels/handwrite/pkg/errors"
)

// Color is an RGBA color with 8-bit channels stored as ints so that out of
// range input can be reported instead of silently wrapping.
type Color struct {
	R int `json:"r" toml:"r"`
	G int `json:"g" toml:"g"`
	B int `json:"b" toml:"b"`
	A int `json:"a" toml:"a"`
}

// Named colors accepted by ParseColor.
var namedColors = map[string]Color{
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"blue":        {0, 0, 255, 255},
	"transparent": {0, 0, 0, 0},
}

// NRGBA converts c to a non-premultiplied color. Channels are clamped.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: clamp8(c.R), G: clamp8(c.G), B: clamp8(c.B), A: clamp8(c.A)}
}

// String formats c as "r,g,b,a", the form accepted by ParseColor.
func (c Color) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", c.R, c.G, c.B, c.A)
}

func (c Color) validate(field string) error {
	for _, ch := range []struct {
		name string
		v    int
	}{{"r", c.R}, {"g", c.G}, {"b", c.B}, {"a", c.A}} {
		if ch.v < 0 || ch.v > 255 {
			return errors.New(errors.ErrCodeInvalidParams, "%s.%s must be between 0 and 255, got %d", field, ch.name, ch.v)
		}
	}
	return nil
}

// ParseColor parses "r,g,b[,a]", "#rrggbb[aa]" or a color name
// (black, white, red, blue, transparent). Alpha defaults to 255.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}

	if hex, ok := strings.CutPrefix(s, "#"); ok {
		if len(hex) != 6 && len(hex) != 8 {
			return Color{}, errors.New(errors.ErrCodeInvalidParams, "invalid hex color %q", s)
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return Color{}, errors.New(errors.ErrCodeInvalidParams, "invalid hex color %q", s)
		}
		if len(hex) == 6 {
			v = v<<8 | 0xff
		}
		return Color{R: int(v >> 24 & 0xff), G: int(v >> 16 & 0xff), B: int(v >> 8 & 0xff), A: int(v & 0xff)}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, errors.New(errors.ErrCodeInvalidParams, "invalid color %q (want r,g,b[,a], #rrggbb[aa] or a name)", s)
	}
	vals := []int{0, 0, 0, 255}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Color{}, errors.New(errors.ErrCodeInvalidParams, "invalid color component %q", p)
		}
		vals[i] = v
	}
	c := Color{R: vals[0], G: vals[1], B: vals[2], A: vals[3]}
	if err := c.validate("color"); err != nil {
		return Color{}, err
	}
	return c, nil
}

func clamp8(v int) uint8 {
	return uint8(max(0, min(v, 255)))
}
