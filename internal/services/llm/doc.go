// Package llm provides an OpenAI-compatible HTTP client.
//
// Chat completions in JSON mode back the metadata generator. The same client
// also carries the transcription and moderation requests through Post, so
// every provider call shares one credential, timeout and retry policy.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, network timeouts and empty
// completions with exponential backoff (base 1s, max 10s, 3 attempts by
// default). A Retry-After header overrides the computed delay. Context
// cancellation aborts retries immediately.
//
// # Decoding
//
// DecodeLLMJSON tolerates code fences and prose around the JSON object that
// models sometimes add despite JSON mode.
package llm
