package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Queue backends.
const (
	QueueBackendSQLite = "sqlite"
	QueueBackendRedis  = "redis"
	QueueBackendMemory = "memory"
)

// Storage backends.
const (
	StorageBackendS3    = "s3"
	StorageBackendGCS   = "gcs"
	StorageBackendLocal = "local"
)

// Paths contains local directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	TempDir string `toml:"temp_dir"`
	LogDir  string `toml:"log_dir"`
}

// Queue configures the work queue the worker consumes.
type Queue struct {
	Backend            string `toml:"backend"`
	RedisURL           string `toml:"redis_url"`
	Name               string `toml:"name"`
	DequeueTimeout     int    `toml:"dequeue_timeout"`
	PollIntervalMillis int    `toml:"poll_interval_ms"`
	ErrorPause         int    `toml:"error_pause"`
}

// Storage configures the object store holding raw, intermediate and published audio.
type Storage struct {
	Backend         string `toml:"backend"`
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	AccessKey       string `toml:"access_key"`
	SecretKey       string `toml:"secret_key"`
	PathStyle       bool   `toml:"path_style"`
	PrivateBucket   string `toml:"private_bucket"`
	PublicBucket    string `toml:"public_bucket"`
	ArtifactsBucket string `toml:"artifacts_bucket"`
	LocalRoot       string `toml:"local_root"`
}

// OpenAI contains provider credentials and model selection.
type OpenAI struct {
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	TranscribeModel string `toml:"transcribe_model"`
	MetadataModel   string `toml:"metadata_model"`
	ModerationModel string `toml:"moderation_model"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	RetryAttempts   int    `toml:"retry_attempts"`
}

// Audio configures the local transform tools.
type Audio struct {
	FFmpegBinary      string `toml:"ffmpeg_binary"`
	FFprobeBinary     string `toml:"ffprobe_binary"`
	LoudnormFilter    string `toml:"loudnorm_filter"`
	DefaultSampleRate int    `toml:"default_sample_rate"`
}

// Notifications configures ntfy pushes and the CloudEvents webhook.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	WebhookURL     string `toml:"webhook_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// API configures the HTTP surface.
type API struct {
	Bind              string `toml:"bind"`
	Token             string `toml:"token"`
	PresignTTLMinutes int    `toml:"presign_ttl_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for winivox.
//
// Configuration sections by subsystem:
//   - Paths: database, lock and scratch directories
//   - Queue: work queue backend and worker timing
//   - Storage: object store backend and bucket names
//   - OpenAI: transcription, moderation and metadata providers
//   - Audio: ffmpeg/ffprobe binaries and filter settings
//   - Notifications: ntfy and webhook notification settings
//   - API: HTTP bind address, bearer token and presigned URL lifetime
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Queue         Queue         `toml:"queue"`
	Storage       Storage       `toml:"storage"`
	OpenAI        OpenAI        `toml:"openai"`
	Audio         Audio         `toml:"audio"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/winivox/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("winivox.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the worker writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.TempDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageBackendLocal {
		dirs = append(dirs, c.Storage.LocalRoot)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "winivox.db")
}

// LockPath returns the single-worker lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "worker.lock")
}

// DequeueTimeout returns the bounded wait used by the worker loop.
func (c *Config) DequeueTimeout() time.Duration {
	return time.Duration(c.Queue.DequeueTimeout) * time.Second
}

// PollInterval returns how often table-backed queues re-check for work.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollIntervalMillis) * time.Millisecond
}

// ErrorPause returns the delay applied after a failed submission run.
func (c *Config) ErrorPause() time.Duration {
	return time.Duration(c.Queue.ErrorPause) * time.Second
}

// PresignTTL returns the lifetime of presigned upload and download URLs.
func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.API.PresignTTLMinutes) * time.Minute
}

// OpenAIConfigured reports whether provider credentials are present.
func (c *Config) OpenAIConfigured() bool {
	return strings.TrimSpace(c.OpenAI.APIKey) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
