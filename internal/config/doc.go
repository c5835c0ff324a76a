// Package config loads, normalizes, and validates winivox configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the environment variables used by
// the container deployment (OPENAI_API_KEY, REDIS_URL, MINIO_*). The Config
// type centralizes every knob the worker and CLI need: storage buckets, queue
// backend, provider credentials and model names.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config
