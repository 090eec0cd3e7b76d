package machine

import (
	"strings"
	"time"
)

// RunStatus represents the lifecycle of a training or prediction run.
type RunStatus string

const (
	RunNone       RunStatus = "none"
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

var runStatusSet = map[RunStatus]struct{}{
	RunNone:       {},
	RunPending:    {},
	RunInProgress: {},
	RunCompleted:  {},
	RunFailed:     {},
}

// ParseRunStatus converts a string into a known RunStatus.
func ParseRunStatus(value string) (RunStatus, bool) {
	normalized := RunStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := runStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the run has finished, successfully or not.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// HealthStatus categorizes a machine's condition from its health score.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthUnknown  HealthStatus = "unknown"
)

// TrainingRunState is the mutable, polled state of the most recent run.
type TrainingRunState struct {
	Status    RunStatus
	Progress  int
	Message   string
	UpdatedAt time.Time
}

// TrainingParameters holds the learned model parameters produced by a
// successful training run. Replaced wholesale by each subsequent run.
type TrainingParameters struct {
	Threshold       float64   `json:"threshold"`
	MeanError       float64   `json:"mean_error"`
	StdError        float64   `json:"std_error"`
	MinError        float64   `json:"min_error"`
	MaxError        float64   `json:"max_error"`
	Percentile90    float64   `json:"percentile_90"`
	Percentile95    float64   `json:"percentile_95"`
	Percentile99    float64   `json:"percentile_99"`
	TrainedColumns  []string  `json:"trained_columns"`
	ModelType       string    `json:"model_type"`
	TrainingSamples int       `json:"training_samples"`
	EpochsTrained   int       `json:"epochs_trained"`
	FinalLoss       float64   `json:"final_loss"`
	TrainedAt       time.Time `json:"trained_at"`
}

// PredictionResult captures one prediction invocation's derived metrics.
type PredictionResult struct {
	AnomalyScore      float64      `json:"anomaly_score"`
	IsAnomaly         bool         `json:"is_anomaly"`
	Confidence        float64      `json:"confidence"`
	ProcessedSamples  int          `json:"processed_samples"`
	AnomalyCount      int          `json:"anomaly_count"`
	AnomalyPercentage float64      `json:"anomaly_percentage"`
	HealthScore       int          `json:"health_score"`
	RULEstimate       int          `json:"rul_estimate"`
	RiskPercentage    int          `json:"risk_percentage"`
	Status            HealthStatus `json:"status"`
	PredictedAt       time.Time    `json:"predicted_at"`
}

// Machine is a monitored asset persisted in SQLite.
type Machine struct {
	ID            string
	OwnerID       string
	Name          string
	Type          string
	SensorColumns []string

	Run        TrainingRunState
	Parameters *TrainingParameters
	LastResult *PredictionResult

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTrained reports whether the machine has stored model parameters.
func (m *Machine) IsTrained() bool {
	return m != nil && m.Parameters != nil
}

// EffectiveColumns resolves the column set a run should use: explicitly
// requested columns win, then trained columns, then the machine's registered
// sensor columns. Order is significant and preserved.
func (m *Machine) EffectiveColumns(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	if m == nil {
		return nil
	}
	if m.Parameters != nil && len(m.Parameters.TrainedColumns) > 0 {
		return m.Parameters.TrainedColumns
	}
	return m.SensorColumns
}
