package attend

import (
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"detect", ModeDetect, false},
		{"Interval", ModeInterval, false},
		{" manual ", ModeManual, false},
		{"", "", true},
		{"continuous", "", true},
	}
	for _, tc := range tests {
		got, err := ParseMode(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseMode(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero detect interval", func(c *Config) { c.DetectInterval = 0 }, true},
		{"zero detect interval in manual mode", func(c *Config) { c.Mode = ModeManual; c.DetectInterval = 0 }, false},
		{"zero upload interval in interval mode", func(c *Config) { c.Mode = ModeInterval; c.UploadInterval = 0 }, true},
		{"negative upload interval", func(c *Config) { c.Mode = ModeInterval; c.UploadInterval = -time.Second }, true},
		{"quality too low", func(c *Config) { c.Quality = 0 }, true},
		{"quality too high", func(c *Config) { c.Quality = 101 }, true},
		{"empty filename", func(c *Config) { c.Filename = "" }, true},
		{"unknown mode", func(c *Config) { c.Mode = "burst" }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Mode != ModeDetect {
		t.Errorf("Mode = %q, want detect", cfg.Mode)
	}
	if cfg.DetectInterval != 5*time.Second || cfg.UploadInterval != 5*time.Second {
		t.Errorf("intervals = %v / %v, want 5s", cfg.DetectInterval, cfg.UploadInterval)
	}
	if cfg.Quality != 90 || cfg.Filename != "capture.jpg" {
		t.Errorf("quality=%d filename=%q", cfg.Quality, cfg.Filename)
	}
}
