package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.MockMode {
		return nil
	}
	if strings.TrimSpace(c.Engine.BaseURL) == "" {
		return errors.New("engine.base_url must be set (or enable engine.mock_mode)")
	}
	if strings.TrimSpace(c.Engine.CallbackBaseURL) == "" {
		return errors.New("engine.callback_base_url must be set so dispatched tasks can resume")
	}
	if strings.TrimSpace(c.Engine.CallbackSecret) == "" {
		return errors.New("engine.callback_secret must be set; callbacks are rejected without a signature")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.DispatchStaleAfterMins < 0 {
		return errors.New("workflow.dispatch_stale_after_minutes must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
