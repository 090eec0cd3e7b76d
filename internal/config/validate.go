package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateModel(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.Socket == "" {
		return errors.New("paths.socket must be set")
	}
	return nil
}

func (c *Config) validateModel() error {
	if c.Model.PythonBinary == "" {
		return errors.New("model.python_binary must be set")
	}
	if c.Model.TrainerScript == "" {
		return errors.New("model.trainer_script must be set")
	}
	if c.Model.PredictorScript == "" {
		return errors.New("model.predictor_script must be set")
	}
	if c.Model.DefaultThreshold <= 0 {
		return errors.New("model.default_threshold must be positive")
	}
	if c.Model.MaxSensorColumns < 1 {
		return errors.New("model.max_sensor_columns must be at least 1")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	for name, value := range map[string]int{
		"timeouts.training":       c.Timeouts.Training,
		"timeouts.prediction":     c.Timeouts.Prediction,
		"timeouts.status_session": c.Timeouts.StatusSession,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}
