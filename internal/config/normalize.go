package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeOpenAI()
	c.normalizeAudio()
	c.normalizeNotifications()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = filepath.Join(c.Paths.DataDir, "tmp")
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeQueue() {
	c.Queue.RedisURL = strings.TrimSpace(c.Queue.RedisURL)
	if c.Queue.RedisURL == "" {
		c.Queue.RedisURL = envValue("REDIS_URL")
	}
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	c.Queue.Name = strings.TrimSpace(c.Queue.Name)
	if c.Queue.Name == "" {
		c.Queue.Name = defaultQueueName
	}
}

func (c *Config) normalizeStorage() error {
	s := &c.Storage
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	if s.Backend == "" {
		s.Backend = defaultStorageBackend
	}
	if value := envValue("MINIO_ENDPOINT"); value != "" && strings.TrimSpace(s.Endpoint) == defaultStorageEndpoint {
		s.Endpoint = value
	}
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	if s.AccessKey = strings.TrimSpace(s.AccessKey); s.AccessKey == "" {
		s.AccessKey = envValue("MINIO_ACCESS_KEY")
	}
	if s.SecretKey = strings.TrimSpace(s.SecretKey); s.SecretKey == "" {
		s.SecretKey = envValue("MINIO_SECRET_KEY")
	}
	if value := envValue("MINIO_REGION"); value != "" && (s.Region == "" || s.Region == defaultStorageRegion) {
		s.Region = value
	}
	s.Region = strings.TrimSpace(s.Region)
	s.PrivateBucket = preferConfigured(s.PrivateBucket, defaultPrivateBucket, "MINIO_PRIVATE_BUCKET")
	s.PublicBucket = preferConfigured(s.PublicBucket, defaultPublicBucket, "MINIO_PUBLIC_BUCKET")
	s.ArtifactsBucket = preferConfigured(s.ArtifactsBucket, defaultArtifactsBucket, "MINIO_ARTIFACTS_BUCKET")
	if s.Backend == StorageBackendLocal && strings.TrimSpace(s.LocalRoot) == "" {
		s.LocalRoot = filepath.Join(c.Paths.DataDir, "objects")
	}
	var err error
	if s.LocalRoot, err = expandPath(strings.TrimSpace(s.LocalRoot)); err != nil {
		return fmt.Errorf("storage.local_root: %w", err)
	}
	return nil
}

// preferConfigured prefers an explicit config value, then the environment, then the default.
func preferConfigured(value, fallback, env string) string {
	value = strings.TrimSpace(value)
	if value != "" && value != fallback {
		return value
	}
	if fromEnv := envValue(env); fromEnv != "" {
		return fromEnv
	}
	return fallback
}

func (c *Config) normalizeOpenAI() {
	o := &c.OpenAI
	if o.APIKey = strings.TrimSpace(o.APIKey); o.APIKey == "" {
		o.APIKey = envValue("OPENAI_API_KEY")
	}
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if o.BaseURL == "" {
		o.BaseURL = defaultOpenAIBaseURL
	}
	o.TranscribeModel = preferConfigured(o.TranscribeModel, defaultTranscribeModel, "OPENAI_TRANSCRIBE_MODEL")
	o.MetadataModel = preferConfigured(o.MetadataModel, defaultMetadataModel, "OPENAI_METADATA_MODEL")
	o.ModerationModel = preferConfigured(o.ModerationModel, defaultModerationModel, "OPENAI_MODERATION_MODEL")
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = defaultOpenAITimeout
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 1
	}
}

func (c *Config) normalizeAudio() {
	c.Audio.FFmpegBinary = strings.TrimSpace(c.Audio.FFmpegBinary)
	if c.Audio.FFmpegBinary == "" {
		c.Audio.FFmpegBinary = defaultFFmpegBinary
	}
	c.Audio.FFprobeBinary = strings.TrimSpace(c.Audio.FFprobeBinary)
	if c.Audio.FFprobeBinary == "" {
		c.Audio.FFprobeBinary = defaultFFprobeBinary
	}
	c.Audio.LoudnormFilter = strings.TrimSpace(c.Audio.LoudnormFilter)
	if c.Audio.LoudnormFilter == "" {
		c.Audio.LoudnormFilter = defaultLoudnormFilter
	}
	if c.Audio.DefaultSampleRate <= 0 {
		c.Audio.DefaultSampleRate = defaultSampleRate
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Token == "" {
		c.API.Token = envValue("WINIVOX_API_TOKEN")
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.PresignTTLMinutes <= 0 {
		c.API.PresignTTLMinutes = defaultPresignTTLMinutes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	if os.Getenv("WORKER_DEV_LOGS") == "1" {
		c.Logging.Level = "debug"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envValue(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
