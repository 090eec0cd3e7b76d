package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeModel(); err != nil {
		return err
	}
	c.normalizeTimeouts()
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
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.Socket) == "" {
		c.Paths.Socket = defaultSocket
	}
	if c.Paths.Socket, err = expandPath(c.Paths.Socket); err != nil {
		return fmt.Errorf("paths.socket: %w", err)
	}
	return nil
}

func (c *Config) normalizeModel() error {
	var err error
	c.Model.PythonBinary = strings.TrimSpace(c.Model.PythonBinary)
	if c.Model.PythonBinary == "" {
		if value, ok := os.LookupEnv("PREDICTRA_PYTHON"); ok && strings.TrimSpace(value) != "" {
			c.Model.PythonBinary = strings.TrimSpace(value)
		} else {
			c.Model.PythonBinary = defaultPythonBinary
		}
	}
	if strings.TrimSpace(c.Model.TrainerScript) == "" {
		c.Model.TrainerScript = defaultTrainerScript
	}
	if c.Model.TrainerScript, err = expandPath(c.Model.TrainerScript); err != nil {
		return fmt.Errorf("model.trainer_script: %w", err)
	}
	if strings.TrimSpace(c.Model.PredictorScript) == "" {
		c.Model.PredictorScript = defaultPredictorScript
	}
	if c.Model.PredictorScript, err = expandPath(c.Model.PredictorScript); err != nil {
		return fmt.Errorf("model.predictor_script: %w", err)
	}
	if c.Model.DefaultThreshold <= 0 {
		c.Model.DefaultThreshold = defaultThreshold
	}
	if c.Model.MaxSensorColumns <= 0 {
		c.Model.MaxSensorColumns = defaultMaxSensorColumns
	}
	return nil
}

func (c *Config) normalizeTimeouts() {
	if c.Timeouts.Training <= 0 {
		c.Timeouts.Training = defaultTrainingTimeout
	}
	if c.Timeouts.Prediction <= 0 {
		c.Timeouts.Prediction = defaultPredictTimeout
	}
	if c.Timeouts.StatusSession <= 0 {
		c.Timeouts.StatusSession = defaultSessionTimeout
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
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
