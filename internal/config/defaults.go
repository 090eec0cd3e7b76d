package config

const (
	defaultDataDir          = "~/.local/share/predictra"
	defaultLogDir           = "~/.local/share/predictra/logs"
	defaultScratchDir       = "~/.local/share/predictra/scratch"
	defaultSocket           = "~/.local/share/predictra/predictra.sock"
	defaultPythonBinary     = "python3"
	defaultTrainerScript    = "~/.local/share/predictra/models/simple_trainer.py"
	defaultPredictorScript  = "~/.local/share/predictra/models/simple_predictor.py"
	defaultThreshold        = 1.0
	defaultMaxSensorColumns = 64
	defaultTrainingTimeout  = 120
	defaultPredictTimeout   = 60
	defaultSessionTimeout   = 180
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			ScratchDir: defaultScratchDir,
			Socket:     defaultSocket,
		},
		Model: Model{
			PythonBinary:     defaultPythonBinary,
			TrainerScript:    defaultTrainerScript,
			PredictorScript:  defaultPredictorScript,
			DefaultThreshold: defaultThreshold,
			MaxSensorColumns: defaultMaxSensorColumns,
		},
		Timeouts: Timeouts{
			Training:      defaultTrainingTimeout,
			Prediction:    defaultPredictTimeout,
			StatusSession: defaultSessionTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
