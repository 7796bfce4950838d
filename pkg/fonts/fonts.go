// Package fonts provides the font catalog used for handwriting rendering.
//
// A [Catalog] scans a single directory for TrueType/OpenType files and
// reports them by name (the file name without extension). The Go fonts from
// golang.org/x/image are embedded into the binary and always listed after the
// scanned fonts, so the service can render even with an empty directory.
//
//	cat := fonts.NewCatalog("ttf_library")
//	f, err := cat.Resolve("Caveat")
//	parsed, err := cat.Load(f)
package fonts

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/matzehuels/handwrite/pkg/errors"
)

// BuiltinPrefix marks font paths that refer to embedded font data.
const BuiltinPrefix = "builtin:"

// DefaultBuiltin is used when the font directory holds no fonts.
const DefaultBuiltin = "go-regular"

var builtins = []struct {
	name string
	data []byte
}{
	{"go-regular", goregular.TTF},
	{"go-italic", goitalic.TTF},
	{"go-mono", gomono.TTF},
}

// extensions are the font file suffixes picked up by a scan (lowercase).
var extensions = []string{".ttf", ".otf"}

// Font identifies a font file known to the catalog.
type Font struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Builtin reports whether the font is embedded in the binary.
func (f Font) Builtin() bool {
	return strings.HasPrefix(f.Path, BuiltinPrefix)
}

// Catalog lists and loads fonts from a directory. It is safe for concurrent use.
type Catalog struct {
	dir string

	mu     sync.Mutex
	parsed map[string]*opentype.Font // by path
}

// NewCatalog creates a catalog rooted at dir. The directory is read on every
// List call, so fonts dropped in while the service runs are picked up.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir, parsed: map[string]*opentype.Font{}}
}

// Dir returns the scanned directory.
func (c *Catalog) Dir() string { return c.dir }

// List returns the scanned fonts sorted by name, followed by the built-ins.
// A missing directory yields only the built-ins.
func (c *Catalog) List() ([]Font, error) {
	scanned, err := c.scan()
	if err != nil {
		return nil, err
	}
	out := make([]Font, 0, len(scanned)+len(builtins))
	out = append(out, scanned...)
	for _, b := range builtins {
		out = append(out, Font{Name: b.name, Path: BuiltinPrefix + b.name})
	}
	return out, nil
}

// Names returns the names of List in order.
func (c *Catalog) Names() ([]string, error) {
	list, err := c.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(list))
	for i, f := range list {
		names[i] = f.Name
	}
	return names, nil
}

// Resolve finds a font by exact name.
func (c *Catalog) Resolve(name string) (Font, error) {
	if err := errors.ValidateFontName(name); err != nil {
		return Font{}, err
	}
	list, err := c.List()
	if err != nil {
		return Font{}, err
	}
	for _, f := range list {
		if f.Name == name {
			return f, nil
		}
	}
	return Font{}, errors.New(errors.ErrCodeFontNotFound, "Font '%s' not found", name)
}

// Default returns the first scanned font, or the default built-in.
func (c *Catalog) Default() (Font, error) {
	scanned, err := c.scan()
	if err != nil {
		return Font{}, err
	}
	if len(scanned) > 0 {
		return scanned[0], nil
	}
	return Font{Name: DefaultBuiltin, Path: BuiltinPrefix + DefaultBuiltin}, nil
}

// Load reads and parses a font. Parsed fonts are cached by path and may be
// shared between goroutines; faces created from them may not.
func (c *Catalog) Load(f Font) (*opentype.Font, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if parsed, ok := c.parsed[f.Path]; ok {
		return parsed, nil
	}

	data, err := readFont(f.Path)
	if err != nil {
		return nil, err
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFont, err, "parse font %s", f.Name)
	}
	c.parsed[f.Path] = parsed
	return parsed, nil
}

// LoadPath loads a font by path, as stored in template parameters.
func (c *Catalog) LoadPath(path string) (*opentype.Font, error) {
	name := strings.TrimPrefix(path, BuiltinPrefix)
	if !strings.HasPrefix(path, BuiltinPrefix) {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c.Load(Font{Name: name, Path: path})
}

func (c *Catalog) scan() ([]Font, error) {
	if c.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read font directory %s", c.dir)
	}

	var out []Font
	seen := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !slices.Contains(extensions, ext) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if name == "" {
			continue
		}
		out = append(out, Font{Name: name, Path: filepath.Join(c.dir, e.Name())})
	}
	slices.SortStableFunc(out, func(a, b Font) int { return strings.Compare(a.Name, b.Name) })

	// Caveat.ttf and Caveat.otf share a name; the first in sorted order wins.
	deduped := out[:0]
	for _, f := range out {
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		deduped = append(deduped, f)
	}
	return deduped, nil
}

func readFont(path string) ([]byte, error) {
	if name, ok := strings.CutPrefix(path, BuiltinPrefix); ok {
		for _, b := range builtins {
			if b.name == name {
				return b.data, nil
			}
		}
		return nil, errors.New(errors.ErrCodeFontNotFound, "Font '%s' not found", name)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeFontNotFound, "Font file %s not found", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read font %s", path)
	}
	return data, nil
}
