package mlproc_test

import (
	"testing"

	"predictra/internal/mlproc"
)

func TestParseLineProgress(t *testing.T) {
	parser := mlproc.NewParser()
	event, ok := parser.ParseLine(`PROGRESS:{"type": "progress", "progress": 40, "message": "Training epoch 4/10"}`)
	if !ok {
		t.Fatal("expected progress event")
	}
	if event.Type != mlproc.EventProgress {
		t.Fatalf("unexpected event type: %q", event.Type)
	}
	if event.Progress != 40 {
		t.Fatalf("unexpected progress: %d", event.Progress)
	}
	if event.Message != "Training epoch 4/10" {
		t.Fatalf("unexpected message: %q", event.Message)
	}
}

func TestParseLineProgressNeverRegresses(t *testing.T) {
	parser := mlproc.NewParser()
	lines := []struct {
		input string
		want  int
	}{
		{`PROGRESS:{"type": "progress", "progress": 30}`, 30},
		{`PROGRESS:{"type": "progress", "progress": 10}`, 30},
		{`PROGRESS:{"type": "progress", "progress": 80}`, 80},
		{`PROGRESS:{"type": "progress", "progress": 250}`, 100},
		{`PROGRESS:{"type": "progress", "progress": -5}`, 100},
	}
	for _, step := range lines {
		event, ok := parser.ParseLine(step.input)
		if !ok {
			t.Fatalf("expected event for %q", step.input)
		}
		if event.Progress != step.want {
			t.Fatalf("line %q: progress %d, want %d", step.input, event.Progress, step.want)
		}
	}
	if parser.Progress() != 100 {
		t.Fatalf("final progress %d, want 100", parser.Progress())
	}
}

func TestParseLineIgnoresNoise(t *testing.T) {
	parser := mlproc.NewParser()
	noise := []string{
		"",
		"2024-05-01 10:00:00 INFO starting up",
		"Epoch 1/10 loss=0.42",
		"PROGRESS:not json at all",
		`{"no_type": true}`,
		"SUCCESS:",
	}
	for _, line := range noise {
		if _, ok := parser.ParseLine(line); ok {
			t.Fatalf("expected line %q to be ignored", line)
		}
	}
}

func TestParseLineBareJSONWithDiscriminator(t *testing.T) {
	parser := mlproc.NewParser()
	event, ok := parser.ParseLine(`{"type": "message", "message": "loaded 500 rows", "message_type": "info"}`)
	if !ok {
		t.Fatal("expected bare JSON event")
	}
	if event.Type != mlproc.EventMessage || event.Message != "loaded 500 rows" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestParseLineFirstSuccessWins(t *testing.T) {
	parser := mlproc.NewParser()
	first := `SUCCESS:{"type": "success", "stats": {"threshold": 0.7, "training_samples": 100}}`
	second := `SUCCESS:{"type": "success", "stats": {"threshold": 9.9, "training_samples": 1}}`

	if _, ok := parser.ParseLine(first); !ok {
		t.Fatal("expected first success to parse")
	}
	if _, ok := parser.ParseLine(second); !ok {
		t.Fatal("expected second success to parse")
	}

	success := parser.Success()
	if success == nil || success.Stats == nil {
		t.Fatal("expected recorded success payload")
	}
	if success.Stats.Threshold != 0.7 {
		t.Fatalf("expected first payload to win, got threshold %v", success.Stats.Threshold)
	}
	if success.Stats.TrainingSamples != 100 {
		t.Fatalf("unexpected training samples: %d", success.Stats.TrainingSamples)
	}
}

func TestParseLineTrainingStatsPayload(t *testing.T) {
	parser := mlproc.NewParser()
	line := `SUCCESS:{"type": "success", "stats": {"threshold": 0.0314, "mean_error": 0.011, "std_error": 0.008, "min_error": 0.0001, "max_error": 0.21, "percentile_90": 0.025, "percentile_95": 0.0314, "percentile_99": 0.092, "final_loss": 0.0042, "final_val_loss": 0.0051, "epochs_trained": 18, "training_samples": 4200, "sensor_columns": ["temp", "vibration"], "model_type": "simple_autoencoder"}}`

	event, ok := parser.ParseLine(line)
	if !ok || event.Type != mlproc.EventSuccess {
		t.Fatalf("expected success event, got ok=%v type=%q", ok, event.Type)
	}
	stats := event.Stats
	if stats == nil {
		t.Fatal("expected stats payload")
	}
	if stats.Threshold != 0.0314 || stats.EpochsTrained != 18 || stats.TrainingSamples != 4200 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.SensorColumns) != 2 || stats.SensorColumns[0] != "temp" {
		t.Fatalf("unexpected sensor columns: %v", stats.SensorColumns)
	}
}

func TestParseLinePredictionPayload(t *testing.T) {
	parser := mlproc.NewParser()
	line := `SUCCESS:{"type": "success", "predictions": {"anomaly_score": 0.041, "is_anomaly": true, "confidence": 0.93, "processed_samples": 300, "anomaly_count": 42, "anomaly_percentage": 14.0, "threshold_used": 0.0314, "error_stats": {"mean": 0.02, "std": 0.01, "min": 0.001, "max": 0.2}, "model_info": {"model_type": "simple_autoencoder", "input_features": 2, "trained_columns": ["temp", "vibration"]}}}`

	event, ok := parser.ParseLine(line)
	if !ok || event.Predictions == nil {
		t.Fatalf("expected prediction success, got ok=%v event=%+v", ok, event)
	}
	p := event.Predictions
	if p.AnomalyScore != 0.041 || !p.IsAnomaly || p.AnomalyCount != 42 {
		t.Fatalf("unexpected predictions: %+v", p)
	}
	if p.ErrorStats.Max != 0.2 {
		t.Fatalf("unexpected error stats: %+v", p.ErrorStats)
	}
	if p.ModelInfo.InputFeatures != 2 {
		t.Fatalf("unexpected model info: %+v", p.ModelInfo)
	}
}

func TestParseLineErrorEvent(t *testing.T) {
	parser := mlproc.NewParser()
	event, ok := parser.ParseLine(`ERROR:{"type": "error", "message": "CSV file is empty"}`)
	if !ok || event.Type != mlproc.EventError {
		t.Fatalf("expected error event, got ok=%v type=%q", ok, event.Type)
	}
	failure := parser.Failure()
	if failure == nil || failure.Message != "CSV file is empty" {
		t.Fatalf("unexpected recorded failure: %+v", failure)
	}
}

func TestParseLineHeartbeat(t *testing.T) {
	parser := mlproc.NewParser()
	event, ok := parser.ParseLine(`HEARTBEAT:{"type": "heartbeat", "timestamp": "2024-05-01T10:00:00"}`)
	if !ok || event.Type != mlproc.EventHeartbeat {
		t.Fatalf("expected heartbeat, got ok=%v type=%q", ok, event.Type)
	}
}
