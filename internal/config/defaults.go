package config

const (
	defaultDataDir           = "~/.local/share/loom"
	defaultLogDir            = "~/.local/share/loom/logs"
	defaultAPIBind           = "127.0.0.1:7733"
	defaultEngineTimeout     = 30
	defaultRetryMax          = 3
	defaultRetryBaseDelayMs  = 1000
	defaultRetryMultiplier   = 2.0
	defaultRetryMaxDelayMs   = 30000
	defaultRetryJitterFactor = 0.1
	defaultBreakerThreshold  = 3
	defaultBreakerCooldownMs = 30000
	defaultDispatchStaleMins = 60
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Engine: Engine{
			RequestTimeout: defaultEngineTimeout,
			WorkflowIDs:    map[string]string{},
		},
		Retry: Retry{
			MaxRetries:        defaultRetryMax,
			BaseDelayMs:       defaultRetryBaseDelayMs,
			BackoffMultiplier: defaultRetryMultiplier,
			MaxDelayMs:        defaultRetryMaxDelayMs,
			JitterFactor:      defaultRetryJitterFactor,
		},
		Breaker: Breaker{
			FailureThreshold: defaultBreakerThreshold,
			CooldownMs:       defaultBreakerCooldownMs,
		},
		Workflow: Workflow{
			QAAutoApprove:          true,
			DispatchStaleAfterMins: defaultDispatchStaleMins,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Intake:         true,
			Published:      true,
			Stalled:        true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
