package ipc

import (
	"time"

	"predictra/internal/machine"
)

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Running         bool   `json:"running"`
	PID             int    `json:"pid"`
	DBPath          string `json:"db_path"`
	LockPath        string `json:"lock_path"`
	SocketPath      string `json:"socket_path"`
	TotalMachines   int    `json:"total_machines"`
	TrainedMachines int    `json:"trained_machines"`
	RunsInProgress  int    `json:"runs_in_progress"`
	FailedLastRun   int    `json:"failed_last_run"`
}

// Machine is the wire representation of a machine record.
type Machine struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	Type           string    `json:"type,omitempty"`
	SensorColumns  []string  `json:"sensor_columns,omitempty"`
	Trained        bool      `json:"trained"`
	RunStatus      string    `json:"run_status"`
	RunProgress    int       `json:"run_progress"`
	RunMessage     string    `json:"run_message,omitempty"`
	Threshold      float64   `json:"threshold,omitempty"`
	ModelType      string    `json:"model_type,omitempty"`
	TrainedColumns []string  `json:"trained_columns,omitempty"`
	HealthScore    int       `json:"health_score,omitempty"`
	RULEstimate    int       `json:"rul_estimate,omitempty"`
	RiskPercentage int       `json:"risk_percentage,omitempty"`
	HealthStatus   string    `json:"health_status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MachineCreateRequest registers a new machine.
type MachineCreateRequest struct {
	OwnerID       string   `json:"owner_id"`
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	SensorColumns []string `json:"sensor_columns"`
}

// MachineCreateResponse contains the created machine.
type MachineCreateResponse struct {
	Machine Machine `json:"machine"`
}

// MachineListRequest lists machines, optionally filtered by owner.
type MachineListRequest struct {
	OwnerID string `json:"owner_id"`
}

// MachineListResponse contains machine entries.
type MachineListResponse struct {
	Machines []Machine `json:"machines"`
}

// MachineDescribeRequest fetches a single machine by id.
type MachineDescribeRequest struct {
	ID string `json:"id"`
}

// MachineDescribeResponse contains a single machine.
type MachineDescribeResponse struct {
	Machine Machine `json:"machine"`
}

// MachineRemoveRequest deletes a machine by id.
type MachineRemoveRequest struct {
	ID string `json:"id"`
}

// MachineRemoveResponse reports whether a machine was removed.
type MachineRemoveResponse struct {
	Removed bool `json:"removed"`
}

// TrainRequest starts a training run.
type TrainRequest struct {
	OwnerID       string   `json:"owner_id"`
	MachineID     string   `json:"machine_id"`
	CSVPath       string   `json:"csv_path"`
	SensorColumns []string `json:"sensor_columns"`
}

// TrainResponse acknowledges a started run.
type TrainResponse struct {
	RunID string `json:"run_id"`
}

// TrainingStatusRequest polls run state for a machine.
type TrainingStatusRequest struct {
	OwnerID   string `json:"owner_id"`
	MachineID string `json:"machine_id"`
}

// TrainingStatusResponse carries the persisted run state.
type TrainingStatusResponse struct {
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PredictRequest runs a synchronous prediction.
type PredictRequest struct {
	OwnerID       string   `json:"owner_id"`
	MachineID     string   `json:"machine_id"`
	CSVPath       string   `json:"csv_path"`
	SensorColumns []string `json:"sensor_columns"`
}

// PredictResponse carries the derived prediction metrics.
type PredictResponse struct {
	AnomalyScore      float64   `json:"anomaly_score"`
	IsAnomaly         bool      `json:"is_anomaly"`
	Confidence        float64   `json:"confidence"`
	ProcessedSamples  int       `json:"processed_samples"`
	AnomalyCount      int       `json:"anomaly_count"`
	AnomalyPercentage float64   `json:"anomaly_percentage"`
	HealthScore       int       `json:"health_score"`
	RULEstimate       int       `json:"rul_estimate"`
	RiskPercentage    int       `json:"risk_percentage"`
	Status            string    `json:"status"`
	PredictedAt       time.Time `json:"predicted_at"`
}

// FromMachine converts a machine record into its wire representation.
func FromMachine(m *machine.Machine) Machine {
	if m == nil {
		return Machine{}
	}
	dto := Machine{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Name:          m.Name,
		Type:          m.Type,
		SensorColumns: m.SensorColumns,
		Trained:       m.IsTrained(),
		RunStatus:     string(m.Run.Status),
		RunProgress:   m.Run.Progress,
		RunMessage:    m.Run.Message,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.Parameters != nil {
		dto.Threshold = m.Parameters.Threshold
		dto.ModelType = m.Parameters.ModelType
		dto.TrainedColumns = m.Parameters.TrainedColumns
	}
	if m.LastResult != nil {
		dto.HealthScore = m.LastResult.HealthScore
		dto.RULEstimate = m.LastResult.RULEstimate
		dto.RiskPercentage = m.LastResult.RiskPercentage
		dto.HealthStatus = string(m.LastResult.Status)
	}
	return dto
}

// FromPredictionResult converts a prediction result into its wire form.
func FromPredictionResult(result *machine.PredictionResult) PredictResponse {
	if result == nil {
		return PredictResponse{}
	}
	return PredictResponse{
		AnomalyScore:      result.AnomalyScore,
		IsAnomaly:         result.IsAnomaly,
		Confidence:        result.Confidence,
		ProcessedSamples:  result.ProcessedSamples,
		AnomalyCount:      result.AnomalyCount,
		AnomalyPercentage: result.AnomalyPercentage,
		HealthScore:       result.HealthScore,
		RULEstimate:       result.RULEstimate,
		RiskPercentage:    result.RiskPercentage,
		Status:            string(result.Status),
		PredictedAt:       result.PredictedAt,
	}
}
