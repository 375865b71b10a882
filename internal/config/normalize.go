package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeRetry()
	c.normalizeBreaker()
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
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.BaseURL = strings.TrimRight(strings.TrimSpace(c.Engine.BaseURL), "/")
	c.Engine.CallbackBaseURL = strings.TrimRight(strings.TrimSpace(c.Engine.CallbackBaseURL), "/")
	c.Engine.CallbackSecret = strings.TrimSpace(c.Engine.CallbackSecret)
	if c.Engine.RequestTimeout <= 0 {
		c.Engine.RequestTimeout = defaultEngineTimeout
	}
	if c.Engine.WorkflowIDs == nil {
		c.Engine.WorkflowIDs = map[string]string{}
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 0
	}
	if c.Retry.BaseDelayMs <= 0 {
		c.Retry.BaseDelayMs = defaultRetryBaseDelayMs
	}
	if c.Retry.BackoffMultiplier < 1 {
		c.Retry.BackoffMultiplier = defaultRetryMultiplier
	}
	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		c.Retry.MaxDelayMs = defaultRetryMaxDelayMs
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor >= 1 {
		c.Retry.JitterFactor = defaultRetryJitterFactor
	}
}

func (c *Config) normalizeBreaker() {
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = defaultBreakerThreshold
	}
	if c.Breaker.CooldownMs <= 0 {
		c.Breaker.CooldownMs = defaultBreakerCooldownMs
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
