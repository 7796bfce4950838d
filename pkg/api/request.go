package api

import (
	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/template"
)

// generateRequest is the body of POST /api/v1/generate.
type generateRequest struct {
	Text   *string        `json:"text"`
	Params *requestParams `json:"params"`
	PDF    bool           `json:"pdf"`
}

// requestParams mirrors template.Params in the nested shape clients send.
// Omitted fields keep the server defaults.
type requestParams struct {
	Rate         *int          `json:"rate"`
	PaperX       *int          `json:"paper_x"`
	PaperY       *int          `json:"paper_y"`
	FontSize     *int          `json:"font_size"`
	LineSpacing  *int          `json:"line_spacing"`
	Margins      *margins      `json:"margins"`
	WordSpacing  *int          `json:"word_spacing"`
	Perturbation *perturbation `json:"perturbation"`
	Font         *string       `json:"font"`

	BackgroundColor *rgba `json:"background_color"`
	FontColor       *rgba `json:"font_color"`

	Seed       *uint64 `json:"seed"`
	StartChars *string `json:"start_chars"`
	EndChars   *string `json:"end_chars"`
}

type margins struct {
	Top    *int `json:"top"`
	Bottom *int `json:"bottom"`
	Left   *int `json:"left"`
	Right  *int `json:"right"`
}

type perturbation struct {
	LineSpacing *float64 `json:"line_spacing"`
	FontSize    *float64 `json:"font_size"`
	WordSpacing *float64 `json:"word_spacing"`
	XOffset     *float64 `json:"x_offset"`
	YOffset     *float64 `json:"y_offset"`
	Rotation    *float64 `json:"rotation"`
}

// rgba requires all four channels.
type rgba struct {
	R *int `json:"r"`
	G *int `json:"g"`
	B *int `json:"b"`
	A *int `json:"a"`
}

func (c *rgba) color(field string) (*template.Color, error) {
	if c == nil {
		return nil, nil
	}
	if c.R == nil || c.G == nil || c.B == nil || c.A == nil {
		return nil, errors.New(errors.ErrCodeInvalidParams, "%s needs r, g, b and a", field)
	}
	return &template.Color{R: *c.R, G: *c.G, B: *c.B, A: *c.A}, nil
}

// overrides converts the request into template overrides. The font is
// handled separately because it needs the catalog.
func (rp *requestParams) overrides() (template.Overrides, error) {
	var o template.Overrides
	if rp == nil {
		return o, nil
	}
	o.Rate = rp.Rate
	o.PaperX = rp.PaperX
	o.PaperY = rp.PaperY
	o.FontSize = rp.FontSize
	o.LineSpacing = rp.LineSpacing
	o.WordSpacing = rp.WordSpacing
	o.Seed = rp.Seed
	o.StartChars = rp.StartChars
	o.EndChars = rp.EndChars

	if m := rp.Margins; m != nil {
		o.TopMargin = m.Top
		o.BottomMargin = m.Bottom
		o.LeftMargin = m.Left
		o.RightMargin = m.Right
	}
	if p := rp.Perturbation; p != nil {
		o.LineSpacingSigma = p.LineSpacing
		o.FontSizeSigma = p.FontSize
		o.WordSpacingSigma = p.WordSpacing
		o.PerturbXSigma = p.XOffset
		o.PerturbYSigma = p.YOffset
		o.PerturbThetaSigma = p.Rotation
	}

	var err error
	if o.Background, err = rp.BackgroundColor.color("background_color"); err != nil {
		return o, err
	}
	if o.Fill, err = rp.FontColor.color("font_color"); err != nil {
		return o, err
	}
	return o, nil
}

// generateResponse is the body returned by POST /api/v1/generate.
type generateResponse struct {
	ID        string            `json:"id"`
	Images    map[string]string `json:"images"`
	PageCount int               `json:"page_count"`
	Seed      uint64            `json:"seed"`
	Cached    bool              `json:"cached"`
	PDF       string            `json:"pdf,omitempty"`
}

type fontsResponse struct {
	Fonts []string `json:"fonts"`
}

type errorResponse struct {
	Detail string      `json:"detail"`
	Code   errors.Code `json:"code"`
}
