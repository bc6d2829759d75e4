package config

const (
	defaultStagingDir = "~/.local/share/reelsmith/staging"
	defaultLibraryDir = "~/reels"
	defaultLogDir     = "~/.local/share/reelsmith/logs"
	defaultAPIBind    = "127.0.0.1:7787"

	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultWorkerCount        = 2
	defaultMaxJobDuration     = 1800

	defaultRetryMaxAttempts = 3
	defaultRetryBaseDelayMS = 1000
	defaultRetryMaxDelayMS  = 60000
	defaultRetryMultiplier  = 2.0
	defaultRetryStrategy    = "exponential"

	defaultBreakerFailureThreshold = 5
	defaultBreakerRecoveryTimeout  = 30

	defaultRenderWidth    = 1920
	defaultRenderHeight   = 1080
	defaultRenderFPS      = 30
	defaultWordsPerMinute = 150

	defaultVoice = "narrator"

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			WorkerCount:        defaultWorkerCount,
			MaxJobDuration:     defaultMaxJobDuration,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			BaseDelayMS: defaultRetryBaseDelayMS,
			MaxDelayMS:  defaultRetryMaxDelayMS,
			Multiplier:  defaultRetryMultiplier,
			Strategy:    defaultRetryStrategy,
			Jitter:      true,
		},
		Breaker: Breaker{
			FailureThreshold: defaultBreakerFailureThreshold,
			RecoveryTimeout:  defaultBreakerRecoveryTimeout,
		},
		Render: Render{
			Width:          defaultRenderWidth,
			Height:         defaultRenderHeight,
			FPS:            defaultRenderFPS,
			WordsPerMinute: defaultWordsPerMinute,
		},
		Audio: Audio{
			Enabled: true,
			Voice:   defaultVoice,
		},
		Publish: Publish{
			OverwriteExisting: false,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
