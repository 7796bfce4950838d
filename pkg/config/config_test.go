package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/handwrite/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "handwrite.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Template.Rate != 4 {
		t.Errorf("Load(\"\") should return defaults, got %+v", cfg.Server)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Load(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = "127.0.0.1:9000"
request_timeout = "5s"

[fonts]
dir = "fonts"

[cache]
backend = "file"
dir = "/var/cache/handwrite"
ttl = "1h"

[template]
rate = 2
line_spacing = 80
fill = { r = 0, g = 0, b = 255, a = 255 }
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.RequestTimeout.Duration != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.ReadTimeout.Duration != 30*time.Second {
		t.Errorf("unset ReadTimeout should keep its default, got %v", cfg.Server.ReadTimeout)
	}
	if want := filepath.Join(filepath.Dir(path), "fonts"); cfg.Fonts.Dir != want {
		t.Errorf("Fonts.Dir = %q, want %q", cfg.Fonts.Dir, want)
	}
	if cfg.Cache.Dir != "/var/cache/handwrite" || cfg.Cache.TTL.Duration != time.Hour {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Template.Rate != 2 || cfg.Template.LineSpacing != 80 || cfg.Template.FontSize != 30 {
		t.Errorf("Template = %+v", cfg.Template)
	}
	if cfg.Template.Fill.B != 255 || cfg.Template.Fill.R != 0 {
		t.Errorf("Fill = %v", cfg.Template.Fill)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode errors.Code
	}{
		{"syntax", "[server\naddr=", errors.ErrCodeInvalidFormat},
		{"unknown key", "[server]\nport = 1", errors.ErrCodeInvalidFormat},
		{"bad duration", "[server]\nread_timeout = \"soon\"", errors.ErrCodeInvalidFormat},
		{"bad backend", "[cache]\nbackend = \"memcached\"", errors.ErrCodeInvalidParams},
		{"mongo without uri", "[history]\nbackend = \"mongo\"", errors.ErrCodeInvalidParams},
		{"bad template", "[template]\nrate = 0", errors.ErrCodeInvalidParams},
		{"negative timeout", "[server]\nwrite_timeout = \"-1s\"", errors.ErrCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if got := errors.GetCode(err); got != tt.wantCode {
				t.Errorf("Load() code = %q, want %q (err=%v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ":7000"
	cfg.Cache.TTL = Duration{90 * time.Minute}
	cfg.Template.StartChars = "(["

	var buf bytes.Buffer
	if err := cfg.Encode(&buf); err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !strings.Contains(buf.String(), `ttl = "1h30m0s"`) {
		t.Errorf("durations should encode as strings:\n%s", buf.String())
	}

	var got Config
	if err := Decode(buf.Bytes(), &got); err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if got.Server.Addr != ":7000" || got.Cache.TTL != cfg.Cache.TTL || got.Template != cfg.Template {
		t.Errorf("round trip lost values: %+v", got)
	}
}
