package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		DataDir     string `mapstructure:"data_dir"`
		FrontendDir string `mapstructure:"frontend_dir"`
		APIPort     string `mapstructure:"api_port"`
		MetricsPort string `mapstructure:"metrics_port"`
	} `mapstructure:"server"`
	Stream struct {
		URL            string `mapstructure:"url"`
		ChunkDir       string `mapstructure:"chunk_dir"`
		SegmentSeconds int    `mapstructure:"segment_seconds"`
		RestartDelay   int    `mapstructure:"restart_delay_seconds"`
		StallSeconds   int    `mapstructure:"stall_seconds"`
	} `mapstructure:"stream"`
	Metadata struct {
		URL              string `mapstructure:"url"`
		PollSeconds      int    `mapstructure:"poll_seconds"`
		RetentionMinutes int    `mapstructure:"retention_minutes"`
	} `mapstructure:"metadata"`
	Assembler struct {
		IdleFlushMinutes int `mapstructure:"idle_flush_minutes"`
		TitleMaxWords    int `mapstructure:"title_max_words"`
	} `mapstructure:"assembler"`
	Transcribe struct {
		APIKey       string `mapstructure:"api_key"`
		URL          string `mapstructure:"url"`
		Model        string `mapstructure:"model"`
		Language     string `mapstructure:"language"`
		MaxFileBytes int64  `mapstructure:"max_file_bytes"`
	} `mapstructure:"transcribe"`
	Database struct {
		Driver   string `mapstructure:"driver"`
		Path     string `mapstructure:"path"`
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`
	Storage struct {
		Provider      string `mapstructure:"provider"`
		LocalStorage  string `mapstructure:"local_path"`
		KeyID         string `mapstructure:"key_id"`
		AppKey        string `mapstructure:"app_key"`
		Endpoint      string `mapstructure:"endpoint"`
		Region        string `mapstructure:"region"`
		BucketArchive string `mapstructure:"bucket_archive"`
	} `mapstructure:"storage"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Metadata.PollSeconds) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.Metadata.RetentionMinutes) * time.Minute
}

func (c *Config) ChunkDuration() time.Duration {
	return time.Duration(c.Stream.SegmentSeconds) * time.Second
}

func (c *Config) IdleFlush() time.Duration {
	return time.Duration(c.Assembler.IdleFlushMinutes) * time.Minute
}

func (c *Config) StallThreshold() time.Duration {
	return time.Duration(c.Stream.StallSeconds) * time.Second
}

func Load() *Config {
	viper.SetEnvPrefix("RADIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Register keys
	viper.BindEnv("server.data_dir")
	viper.BindEnv("server.frontend_dir")
	viper.BindEnv("server.api_port")
	viper.BindEnv("server.metrics_port")

	viper.BindEnv("stream.url")
	viper.BindEnv("stream.chunk_dir")
	viper.BindEnv("stream.segment_seconds")
	viper.BindEnv("stream.restart_delay_seconds")
	viper.BindEnv("stream.stall_seconds")

	viper.BindEnv("metadata.url")
	viper.BindEnv("metadata.poll_seconds")
	viper.BindEnv("metadata.retention_minutes")

	viper.BindEnv("assembler.idle_flush_minutes")
	viper.BindEnv("assembler.title_max_words")

	viper.BindEnv("transcribe.api_key")
	viper.BindEnv("transcribe.url")
	viper.BindEnv("transcribe.model")
	viper.BindEnv("transcribe.language")
	viper.BindEnv("transcribe.max_file_bytes")

	viper.BindEnv("database.driver")
	viper.BindEnv("database.path")
	viper.BindEnv("database.host")
	viper.BindEnv("database.port")
	viper.BindEnv("database.user")
	viper.BindEnv("database.password")
	viper.BindEnv("database.name")

	viper.BindEnv("storage.provider")
	viper.BindEnv("storage.local_path")
	viper.BindEnv("storage.key_id")
	viper.BindEnv("storage.app_key")
	viper.BindEnv("storage.endpoint")
	viper.BindEnv("storage.region")
	viper.BindEnv("storage.bucket_archive")

	viper.BindEnv("auth.jwt_secret")

	// Defaults
	viper.SetDefault("server.data_dir", "./data")
	viper.SetDefault("server.frontend_dir", "./frontend")
	viper.SetDefault("server.api_port", ":8080")
	viper.SetDefault("server.metrics_port", ":9091")

	viper.SetDefault("stream.chunk_dir", "./data/chunks")
	viper.SetDefault("stream.segment_seconds", 120)
	viper.SetDefault("stream.restart_delay_seconds", 5)
	viper.SetDefault("stream.stall_seconds", 300)

	viper.SetDefault("metadata.poll_seconds", 1)
	viper.SetDefault("metadata.retention_minutes", 15)

	viper.SetDefault("assembler.idle_flush_minutes", 5)
	viper.SetDefault("assembler.title_max_words", 10)

	viper.SetDefault("transcribe.url", "https://api.openai.com/v1/audio/transcriptions")
	viper.SetDefault("transcribe.model", "whisper-1")
	viper.SetDefault("transcribe.language", "de")
	viper.SetDefault("transcribe.max_file_bytes", 20*1024*1024)

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "./data/broadcasts.db")

	viper.SetDefault("storage.local_path", "./archive")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Config error: %s", err)
		} else {
			log.Println("Info: config.yaml not found, using Environment Variables only.")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}

	return &cfg
}

// LoadMonitor loads the config and verifies the credentials the capture
// pipeline cannot run without. The API binary calls Load directly: it only
// serves the catalog and needs neither.
func LoadMonitor() *Config {
	cfg := Load()

	if cfg.Transcribe.APIKey == "" {
		log.Fatal("Critical: Transcription API key is missing (RADIO_TRANSCRIBE_API_KEY)")
	}
	if cfg.Stream.URL == "" {
		log.Fatal("Critical: Stream URL is missing (RADIO_STREAM_URL)")
	}

	return cfg
}
