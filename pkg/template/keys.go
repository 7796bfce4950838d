package template

import (
	"strconv"
	"sync"

	"github.com/matzehuels/handwrite/pkg/errors"
)

// field reads and writes one Params entry by its flat key.
type field struct {
	key string
	get func(*Params) string
	set func(*Params, string) error
}

func intField(key string, ptr func(*Params) *int) field {
	return field{
		key: key,
		get: func(p *Params) string { return strconv.Itoa(*ptr(p)) },
		set: func(p *Params, s string) error {
			v, err := strconv.Atoi(s)
			if err != nil {
				return errors.New(errors.ErrCodeInvalidParams, "%s: %q is not an integer", key, s)
			}
			*ptr(p) = v
			return nil
		},
	}
}

func floatField(key string, ptr func(*Params) *float64) field {
	return field{
		key: key,
		get: func(p *Params) string { return strconv.FormatFloat(*ptr(p), 'g', -1, 64) },
		set: func(p *Params, s string) error {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return errors.New(errors.ErrCodeInvalidParams, "%s: %q is not a number", key, s)
			}
			*ptr(p) = v
			return nil
		},
	}
}

func stringField(key string, ptr func(*Params) *string) field {
	return field{
		key: key,
		get: func(p *Params) string { return *ptr(p) },
		set: func(p *Params, s string) error { *ptr(p) = s; return nil },
	}
}

func colorField(key string, ptr func(*Params) *Color) field {
	return field{
		key: key,
		get: func(p *Params) string { return ptr(p).String() },
		set: func(p *Params, s string) error {
			c, err := ParseColor(s)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidParams, err, "%s", key)
			}
			*ptr(p) = c
			return nil
		},
	}
}

var fields = []field{
	intField("rate", func(p *Params) *int { return &p.Rate }),
	intField("paper_x", func(p *Params) *int { return &p.PaperX }),
	intField("paper_y", func(p *Params) *int { return &p.PaperY }),
	stringField("font", func(p *Params) *string { return &p.Font }),
	intField("font_size", func(p *Params) *int { return &p.FontSize }),
	intField("line_spacing", func(p *Params) *int { return &p.LineSpacing }),
	intField("top_margin", func(p *Params) *int { return &p.TopMargin }),
	intField("bottom_margin", func(p *Params) *int { return &p.BottomMargin }),
	intField("left_margin", func(p *Params) *int { return &p.LeftMargin }),
	intField("right_margin", func(p *Params) *int { return &p.RightMargin }),
	intField("word_spacing", func(p *Params) *int { return &p.WordSpacing }),
	floatField("line_spacing_sigma", func(p *Params) *float64 { return &p.LineSpacingSigma }),
	floatField("font_size_sigma", func(p *Params) *float64 { return &p.FontSizeSigma }),
	floatField("word_spacing_sigma", func(p *Params) *float64 { return &p.WordSpacingSigma }),
	floatField("perturb_x_sigma", func(p *Params) *float64 { return &p.PerturbXSigma }),
	floatField("perturb_y_sigma", func(p *Params) *float64 { return &p.PerturbYSigma }),
	floatField("perturb_theta_sigma", func(p *Params) *float64 { return &p.PerturbThetaSigma }),
	stringField("start_chars", func(p *Params) *string { return &p.StartChars }),
	stringField("end_chars", func(p *Params) *string { return &p.EndChars }),
	colorField("background", func(p *Params) *Color { return &p.Background }),
	colorField("fill", func(p *Params) *Color { return &p.Fill }),
	{
		key: "seed",
		get: func(p *Params) string { return strconv.FormatUint(p.Seed, 10) },
		set: func(p *Params, s string) error {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return errors.New(errors.ErrCodeInvalidParams, "seed: %q is not an unsigned integer", s)
			}
			p.Seed = v
			return nil
		},
	},
}

func lookup(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// Keys returns the flat parameter keys in declaration order.
func Keys() []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys
}

// Set updates a single parameter by flat key, parsing value for the field's type.
// It does not validate ranges; call Validate once all updates are applied.
func (p *Params) Set(key, value string) error {
	f, ok := lookup(key)
	if !ok {
		return errors.New(errors.ErrCodeInvalidParams, "unknown parameter %q", key)
	}
	return f.set(p, value)
}

// Get returns the string form of a parameter.
func (p *Params) Get(key string) (string, bool) {
	f, ok := lookup(key)
	if !ok {
		return "", false
	}
	return f.get(p), true
}

// Config holds the current template parameters and supports incremental
// updates. It is safe for concurrent use.
type Config struct {
	mu     sync.RWMutex
	params Params
}

// NewConfig creates a Config starting from p.
func NewConfig(p Params) *Config {
	return &Config{params: p}
}

// Snapshot returns a copy of the current parameters.
func (c *Config) Snapshot() Params {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// Merge returns the current parameters with o applied, validated, without
// changing the Config.
func (c *Config) Merge(o Overrides) (Params, error) {
	p := c.Snapshot().Apply(o)
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Update applies o and commits the result if it validates.
func (c *Config) Update(o Overrides) (Params, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.params.Apply(o)
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	c.params = p
	return p, nil
}

// Set updates one parameter by flat key and commits the result if it validates.
func (c *Config) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.params
	if err := p.Set(key, value); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	c.params = p
	return nil
}
