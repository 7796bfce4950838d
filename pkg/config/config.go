// Package config loads the handwrite configuration file.
//
// The file is TOML. Every key is optional; missing keys keep the values from
// [Default]. The [template] table holds the default rendering parameters and
// uses the same keys as the template package.
//
//	[server]
//	addr = ":8000"
//	request_timeout = "60s"
//
//	[fonts]
//	dir = "ttf_library"
//
//	[template]
//	rate = 4
//	line_spacing = 70
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/handwrite/pkg/errors"
	"github.com/matzehuels/handwrite/pkg/template"
)

// Cache backends.
const (
	CacheNone  = "none"
	CacheFile  = "file"
	CacheRedis = "redis"
)

// History backends.
const (
	HistoryMemory = "memory"
	HistoryMongo  = "mongo"
)

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full service configuration.
type Config struct {
	Server   Server          `toml:"server"`
	Fonts    Fonts           `toml:"fonts"`
	Spool    Spool           `toml:"spool"`
	Cache    Cache           `toml:"cache"`
	History  History         `toml:"history"`
	Metrics  Metrics         `toml:"metrics"`
	Template template.Params `toml:"template"`
}

// Server configures the HTTP listener and request limits.
type Server struct {
	Addr           string   `toml:"addr"`
	ReadTimeout    Duration `toml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
	RequestTimeout Duration `toml:"request_timeout"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
	MaxTextLength  int      `toml:"max_text_length"`
	EncodeWorkers  int      `toml:"encode_workers"`
}

// Fonts configures the font catalog.
type Fonts struct {
	Dir string `toml:"dir"`
}

// Spool configures where pages are written before they are encoded.
// An empty dir uses the system temporary directory.
type Spool struct {
	Dir string `toml:"dir"`
}

// Cache configures the render cache.
type Cache struct {
	Backend   string   `toml:"backend"`
	Dir       string   `toml:"dir"`
	RedisAddr string   `toml:"redis_addr"`
	RedisDB   int      `toml:"redis_db"`
	Prefix    string   `toml:"prefix"`
	TTL       Duration `toml:"ttl"`
}

// History configures the generation history.
type History struct {
	Backend    string `toml:"backend"`
	MongoURI   string `toml:"mongo_uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
	Size       int    `toml:"size"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:           ":8000",
			ReadTimeout:    Duration{30 * time.Second},
			WriteTimeout:   Duration{120 * time.Second},
			RequestTimeout: Duration{90 * time.Second},
			MaxBodyBytes:   1 << 20,
			MaxTextLength:  20000,
			EncodeWorkers:  4,
		},
		Fonts: Fonts{Dir: "ttf_library"},
		Cache: Cache{
			Backend:   CacheNone,
			RedisAddr: "localhost:6379",
			TTL:       Duration{24 * time.Hour},
		},
		History: History{
			Backend:    HistoryMemory,
			Database:   "handwrite",
			Collection: "generations",
			Size:       200,
		},
		Metrics:  Metrics{Enabled: true},
		Template: template.Defaults(),
	}
}

// Load reads the configuration at path on top of Default. An empty path
// returns the defaults. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, errors.New(errors.ErrCodeNotFound, "config file %s not found", path)
		}
		return Config{}, errors.Wrap(errors.ErrCodeInternal, err, "read config %s", path)
	}
	if err := Decode(data, &cfg); err != nil {
		return Config{}, err
	}

	// Relative directories are resolved against the config file.
	base := filepath.Dir(path)
	cfg.Fonts.Dir = resolve(base, cfg.Fonts.Dir)
	cfg.Spool.Dir = resolve(base, cfg.Spool.Dir)
	cfg.Cache.Dir = resolve(base, cfg.Cache.Dir)

	return cfg, cfg.Validate()
}

// Decode parses TOML data into cfg. Unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.New(errors.ErrCodeInvalidFormat, "unknown config key %q", undecoded[0].String())
	}
	return nil
}

func resolve(base, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr is required")
	}
	for _, d := range []struct {
		name string
		v    Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.request_timeout", c.Server.RequestTimeout},
		{"cache.ttl", c.Cache.TTL},
	} {
		if d.v.Duration < 0 {
			return invalid("%s cannot be negative", d.name)
		}
	}
	if c.Server.MaxBodyBytes <= 0 {
		return invalid("server.max_body_bytes must be positive")
	}
	if c.Server.MaxTextLength <= 0 {
		return invalid("server.max_text_length must be positive")
	}
	if !slices.Contains([]string{CacheNone, CacheFile, CacheRedis}, c.Cache.Backend) {
		return invalid("cache.backend must be one of none, file, redis; got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRedis && c.Cache.RedisAddr == "" {
		return invalid("cache.redis_addr is required for the redis backend")
	}
	if !slices.Contains([]string{HistoryMemory, HistoryMongo}, c.History.Backend) {
		return invalid("history.backend must be one of memory, mongo; got %q", c.History.Backend)
	}
	if c.History.Backend == HistoryMongo && c.History.MongoURI == "" {
		return invalid("history.mongo_uri is required for the mongo backend")
	}
	if c.History.Backend == HistoryMemory && c.History.Size <= 0 {
		return invalid("history.size must be positive")
	}
	if err := c.Template.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParams, err, "template")
	}
	return nil
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode config")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func invalid(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidParams, format, args...)
}
