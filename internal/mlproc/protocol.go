package mlproc

import (
	"encoding/json"
	"strings"
)

// Marker prefixes emitted by the model runner scripts. Each marker is
// followed by a single-line JSON object. Lines without a marker may still be
// bare JSON carrying a type discriminator; anything else is log noise.
const (
	markerProgress  = "PROGRESS:"
	markerDetailed  = "DETAILED:"
	markerHeartbeat = "HEARTBEAT:"
	markerSuccess   = "SUCCESS:"
	markerError     = "ERROR:"
)

// EventType identifies the kind of protocol event parsed from one line.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventMessage   EventType = "message"
	EventHeartbeat EventType = "heartbeat"
	EventSuccess   EventType = "success"
	EventError     EventType = "error"
)

// TrainingStats is the final payload of a successful training run.
type TrainingStats struct {
	Threshold       float64  `json:"threshold"`
	MeanError       float64  `json:"mean_error"`
	StdError        float64  `json:"std_error"`
	MinError        float64  `json:"min_error"`
	MaxError        float64  `json:"max_error"`
	Percentile90    float64  `json:"percentile_90"`
	Percentile95    float64  `json:"percentile_95"`
	Percentile99    float64  `json:"percentile_99"`
	FinalLoss       float64  `json:"final_loss"`
	FinalValLoss    float64  `json:"final_val_loss"`
	EpochsTrained   int      `json:"epochs_trained"`
	TrainingSamples int      `json:"training_samples"`
	SensorColumns   []string `json:"sensor_columns"`
	ModelType       string   `json:"model_type"`
}

// ErrorStats summarizes reconstruction error over one prediction batch.
type ErrorStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// ModelInfo describes the model used for a prediction.
type ModelInfo struct {
	ModelType      string   `json:"model_type"`
	InputFeatures  int      `json:"input_features"`
	TrainedColumns []string `json:"trained_columns"`
}

// PredictionStats is the final payload of a successful prediction run.
type PredictionStats struct {
	AnomalyScore      float64    `json:"anomaly_score"`
	IsAnomaly         bool       `json:"is_anomaly"`
	Confidence        float64    `json:"confidence"`
	ProcessedSamples  int        `json:"processed_samples"`
	AnomalyCount      int        `json:"anomaly_count"`
	AnomalyPercentage float64    `json:"anomaly_percentage"`
	ThresholdUsed     float64    `json:"threshold_used"`
	ErrorStats        ErrorStats `json:"error_stats"`
	ModelInfo         ModelInfo  `json:"model_info"`
}

// Event is one parsed protocol event.
type Event struct {
	Type        EventType
	Progress    int
	Message     string
	MessageType string
	Stats       *TrainingStats
	Predictions *PredictionStats
}

type envelope struct {
	Type        string           `json:"type"`
	Progress    *int             `json:"progress"`
	Message     string           `json:"message"`
	MessageType string           `json:"message_type"`
	Stats       *TrainingStats   `json:"stats"`
	Predictions *PredictionStats `json:"predictions"`
}

// Parser is an incremental line parser for the model runner protocol. It
// keeps just enough state to enforce two stream invariants: progress never
// moves backwards, and the first success payload is authoritative even when
// the process emits more than one.
type Parser struct {
	lastProgress int
	success      *Event
	failure      *Event
}

// NewParser returns a parser ready to consume a fresh stream.
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine consumes one stdout line. It returns the decoded event and true
// when the line carried a protocol event; plain log lines and malformed JSON
// report false and are skipped.
func (p *Parser) ParseLine(line string) (Event, bool) {
	payload, ok := extractPayload(line)
	if !ok {
		return Event{}, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Event{}, false
	}

	switch env.Type {
	case "progress":
		progress := 0
		if env.Progress != nil {
			progress = *env.Progress
		}
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		if progress < p.lastProgress {
			progress = p.lastProgress
		}
		p.lastProgress = progress
		return Event{Type: EventProgress, Progress: progress, Message: env.Message}, true
	case "message":
		return Event{Type: EventMessage, Message: env.Message, MessageType: env.MessageType}, true
	case "heartbeat":
		return Event{Type: EventHeartbeat}, true
	case "success":
		event := Event{Type: EventSuccess, Stats: env.Stats, Predictions: env.Predictions}
		if p.success == nil {
			p.success = &event
		}
		return event, true
	case "error":
		event := Event{Type: EventError, Message: env.Message}
		if p.failure == nil {
			p.failure = &event
		}
		return event, true
	default:
		return Event{}, false
	}
}

// Success returns the first success event seen, or nil.
func (p *Parser) Success() *Event {
	return p.success
}

// Failure returns the first error event seen, or nil.
func (p *Parser) Failure() *Event {
	return p.failure
}

// Progress returns the highest progress value observed so far.
func (p *Parser) Progress() int {
	return p.lastProgress
}

func extractPayload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	for _, marker := range []string{markerProgress, markerDetailed, markerHeartbeat, markerSuccess, markerError} {
		if rest, found := strings.CutPrefix(line, marker); found {
			return strings.TrimSpace(rest), true
		}
	}
	// Bare JSON objects are accepted when they carry a type discriminator;
	// anything else on stdout is treated as log output.
	if strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
		return line, true
	}
	return "", false
}
