package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("RADIO_TRANSCRIBE_API_KEY", "sk-test")
	t.Setenv("RADIO_STREAM_URL", "https://stream.example.org/live")
	t.Setenv("RADIO_STREAM_SEGMENT_SECONDS", "60")
	t.Setenv("RADIO_DATABASE_DRIVER", "postgres")

	cfg := LoadMonitor()

	if cfg.Stream.URL != "https://stream.example.org/live" {
		t.Errorf("stream url = %q", cfg.Stream.URL)
	}
	if cfg.Transcribe.APIKey != "sk-test" {
		t.Errorf("api key not picked up from env")
	}

	// Env override beats the default.
	if cfg.Stream.SegmentSeconds != 60 {
		t.Errorf("segment seconds = %d, want 60", cfg.Stream.SegmentSeconds)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}

	// Untouched keys keep their defaults.
	if cfg.Server.APIPort != ":8080" {
		t.Errorf("api port default = %q", cfg.Server.APIPort)
	}
	if cfg.Transcribe.Model != "whisper-1" {
		t.Errorf("model default = %q", cfg.Transcribe.Model)
	}
	if cfg.Transcribe.MaxFileBytes != 20*1024*1024 {
		t.Errorf("max file bytes default = %d", cfg.Transcribe.MaxFileBytes)
	}
	if cfg.Assembler.IdleFlushMinutes != 5 {
		t.Errorf("idle flush default = %d", cfg.Assembler.IdleFlushMinutes)
	}
}

func TestLoadWithoutCaptureCredentials(t *testing.T) {
	viper.Reset()
	t.Setenv("RADIO_TRANSCRIBE_API_KEY", "")
	t.Setenv("RADIO_STREAM_URL", "")

	// The read-side API loads config without capture credentials; only
	// LoadMonitor insists on them.
	cfg := Load()

	if cfg.Transcribe.APIKey != "" || cfg.Stream.URL != "" {
		t.Errorf("unexpected credentials: %q, %q", cfg.Transcribe.APIKey, cfg.Stream.URL)
	}
	if cfg.Server.APIPort != ":8080" {
		t.Errorf("api port default = %q", cfg.Server.APIPort)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver default = %q", cfg.Database.Driver)
	}
}

func TestDurationHelpers(t *testing.T) {
	var cfg Config
	cfg.Stream.SegmentSeconds = 120
	cfg.Stream.StallSeconds = 300
	cfg.Metadata.PollSeconds = 1
	cfg.Metadata.RetentionMinutes = 15
	cfg.Assembler.IdleFlushMinutes = 5

	if cfg.ChunkDuration() != 2*time.Minute {
		t.Errorf("ChunkDuration = %v", cfg.ChunkDuration())
	}
	if cfg.StallThreshold() != 5*time.Minute {
		t.Errorf("StallThreshold = %v", cfg.StallThreshold())
	}
	if cfg.PollInterval() != time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval())
	}
	if cfg.Retention() != 15*time.Minute {
		t.Errorf("Retention = %v", cfg.Retention())
	}
	if cfg.IdleFlush() != 5*time.Minute {
		t.Errorf("IdleFlush = %v", cfg.IdleFlush())
	}
}
