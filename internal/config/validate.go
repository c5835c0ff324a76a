package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateOpenAI(); err != nil {
		return err
	}
	if c.Audio.DefaultSampleRate <= 0 {
		return errors.New("audio.default_sample_rate must be positive")
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case QueueBackendSQLite, QueueBackendMemory:
	case QueueBackendRedis:
		if strings.TrimSpace(c.Queue.RedisURL) == "" {
			return errors.New("queue.redis_url must be set when queue.backend is redis (or set REDIS_URL)")
		}
	default:
		return fmt.Errorf("queue.backend: unsupported value %q", c.Queue.Backend)
	}
	if c.Queue.DequeueTimeout <= 0 {
		return errors.New("queue.dequeue_timeout must be positive")
	}
	if c.Queue.PollIntervalMillis <= 0 {
		return errors.New("queue.poll_interval_ms must be positive")
	}
	if c.Queue.ErrorPause < 0 {
		return errors.New("queue.error_pause must be zero or positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageBackendS3, StorageBackendGCS, StorageBackendLocal:
	default:
		return fmt.Errorf("storage.backend: unsupported value %q", c.Storage.Backend)
	}
	for name, value := range map[string]string{
		"storage.private_bucket":   c.Storage.PrivateBucket,
		"storage.public_bucket":    c.Storage.PublicBucket,
		"storage.artifacts_bucket": c.Storage.ArtifactsBucket,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	if c.Storage.Backend == StorageBackendS3 && strings.TrimSpace(c.Storage.Endpoint) == "" && strings.TrimSpace(c.Storage.Region) == "" {
		return errors.New("storage.endpoint or storage.region must be set for the s3 backend")
	}
	return nil
}

func (c *Config) validateOpenAI() error {
	if c.OpenAI.TimeoutSeconds <= 0 {
		return errors.New("openai.timeout_seconds must be positive")
	}
	if strings.TrimSpace(c.OpenAI.BaseURL) == "" {
		return errors.New("openai.base_url must be set")
	}
	return nil
}
