package config

const (
	defaultDataDir            = "~/.local/share/winivox"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultQueueBackend       = QueueBackendSQLite
	defaultQueueName          = "audio:queue"
	defaultDequeueTimeout     = 5
	defaultPollIntervalMillis = 250
	defaultErrorPause         = 2
	defaultStorageBackend     = StorageBackendS3
	defaultStorageEndpoint    = "http://minio:9000"
	defaultStorageRegion      = "us-east-1"
	defaultPrivateBucket      = "audio-private"
	defaultPublicBucket       = "audio-public"
	defaultArtifactsBucket    = "audio-artifacts"
	defaultOpenAIBaseURL      = "https://api.openai.com/v1"
	defaultTranscribeModel    = "gpt-4o-transcribe"
	defaultMetadataModel      = "gpt-5-mini"
	defaultModerationModel    = "omni-moderation-latest"
	defaultOpenAITimeout      = 120
	defaultOpenAIRetries      = 3
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultLoudnormFilter     = "loudnorm=I=-16:TP=-1.5:LRA=11"
	defaultSampleRate         = 44100
	defaultNotifyTimeout      = 10
	defaultAPIBind            = "127.0.0.1:7480"
	defaultPresignTTLMinutes  = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Queue: Queue{
			Backend:            defaultQueueBackend,
			Name:               defaultQueueName,
			DequeueTimeout:     defaultDequeueTimeout,
			PollIntervalMillis: defaultPollIntervalMillis,
			ErrorPause:         defaultErrorPause,
		},
		Storage: Storage{
			Backend:         defaultStorageBackend,
			Endpoint:        defaultStorageEndpoint,
			Region:          defaultStorageRegion,
			PathStyle:       true,
			PrivateBucket:   defaultPrivateBucket,
			PublicBucket:    defaultPublicBucket,
			ArtifactsBucket: defaultArtifactsBucket,
		},
		OpenAI: OpenAI{
			BaseURL:         defaultOpenAIBaseURL,
			TranscribeModel: defaultTranscribeModel,
			MetadataModel:   defaultMetadataModel,
			ModerationModel: defaultModerationModel,
			TimeoutSeconds:  defaultOpenAITimeout,
			RetryAttempts:   defaultOpenAIRetries,
		},
		Audio: Audio{
			FFmpegBinary:      defaultFFmpegBinary,
			FFprobeBinary:     defaultFFprobeBinary,
			LoudnormFilter:    defaultLoudnormFilter,
			DefaultSampleRate: defaultSampleRate,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		API: API{
			Bind:              defaultAPIBind,
			PresignTTLMinutes: defaultPresignTTLMinutes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
