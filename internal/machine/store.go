package machine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"predictra/internal/config"
)

// Store manages machine persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the machine database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath connects to the machine database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new machine owned by ownerID.
func (s *Store) Create(ctx context.Context, ownerID, name, machineType string, sensorColumns []string) (*Machine, error) {
	ownerID = strings.TrimSpace(ownerID)
	name = strings.TrimSpace(name)
	if ownerID == "" {
		return nil, errors.New("owner id required")
	}
	if name == "" {
		return nil, errors.New("machine name required")
	}

	now := time.Now().UTC()
	id := uuid.NewString()

	columnsJSON, err := marshalColumns(sensorColumns)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO machines (
            id, owner_id, name, type, sensor_columns_json,
            run_status, run_progress, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		ownerID,
		name,
		nullableString(machineType),
		columnsJSON,
		RunNone,
		0,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert machine: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a machine by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Machine, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+machineColumns+` FROM machines WHERE id = ?`, id)
	m, err := scanMachine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get machine: %w", err)
	}
	return m, nil
}

// List returns machines, optionally filtered by owner, ordered by creation time.
func (s *Store) List(ctx context.Context, ownerID string) ([]*Machine, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(ownerID) == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+machineColumns+` FROM machines ORDER BY created_at`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+machineColumns+` FROM machines WHERE owner_id = ? ORDER BY created_at`, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	var machines []*Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

// Update persists changes to an existing machine.
func (s *Store) Update(ctx context.Context, m *Machine) error {
	if m == nil {
		return errors.New("machine is nil")
	}
	m.UpdatedAt = time.Now().UTC()

	columnsJSON, err := marshalColumns(m.SensorColumns)
	if err != nil {
		return err
	}
	paramsJSON, err := marshalJSON(m.Parameters)
	if err != nil {
		return err
	}
	resultJSON, err := marshalJSON(m.LastResult)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE machines
         SET owner_id = ?, name = ?, type = ?, sensor_columns_json = ?,
             run_status = ?, run_progress = ?, run_message = ?, run_updated_at = ?,
             parameters_json = ?, last_result_json = ?, updated_at = ?
         WHERE id = ?`,
		m.OwnerID,
		m.Name,
		nullableString(m.Type),
		columnsJSON,
		m.Run.Status,
		m.Run.Progress,
		nullableString(m.Run.Message),
		nullableTime(m.Run.UpdatedAt),
		paramsJSON,
		resultJSON,
		m.UpdatedAt.Format(time.RFC3339Nano),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("update machine: %w", err)
	}
	return nil
}

// SetRunState updates only the run-state columns. This is the supervisor's
// hot path while a run streams progress; it must not clobber parameters or
// results written by other fields.
func (s *Store) SetRunState(ctx context.Context, id string, state TrainingRunState) error {
	now := time.Now().UTC()
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE machines
         SET run_status = ?, run_progress = ?, run_message = ?, run_updated_at = ?, updated_at = ?
         WHERE id = ?`,
		state.Status,
		state.Progress,
		nullableString(state.Message),
		state.UpdatedAt.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set run state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("machine %s not found", id)
	}
	return nil
}

// RunState fetches only the run-state columns for polling callers.
func (s *Store) RunState(ctx context.Context, id string) (TrainingRunState, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_status, run_progress, run_message, run_updated_at FROM machines WHERE id = ?`,
		id,
	)
	var (
		statusStr  string
		progress   int
		message    sql.NullString
		updatedRaw sql.NullString
	)
	if err := row.Scan(&statusStr, &progress, &message, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TrainingRunState{}, fmt.Errorf("machine %s not found", id)
		}
		return TrainingRunState{}, fmt.Errorf("get run state: %w", err)
	}
	state := TrainingRunState{
		Status:   RunStatus(statusStr),
		Progress: progress,
		Message:  message.String,
	}
	if updatedRaw.Valid {
		if t, err := parseTimeString(updatedRaw.String); err == nil {
			state.UpdatedAt = t
		}
	}
	return state, nil
}

// SaveParameters replaces the machine's trained parameters wholesale.
func (s *Store) SaveParameters(ctx context.Context, id string, params *TrainingParameters) error {
	paramsJSON, err := marshalJSON(params)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE machines SET parameters_json = ?, updated_at = ? WHERE id = ?`,
		paramsJSON, now, id,
	)
	if err != nil {
		return fmt.Errorf("save parameters: %w", err)
	}
	return nil
}

// SaveResult stores the latest prediction result (last-write-wins).
func (s *Store) SaveResult(ctx context.Context, id string, result *PredictionResult) error {
	resultJSON, err := marshalJSON(result)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE machines SET last_result_json = ?, updated_at = ? WHERE id = ?`,
		resultJSON, now, id,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// Delete removes a machine by identifier.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM machines WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete machine: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ResetStuckRuns fails any machine left mid-run by a previous process. Called
// at daemon startup so no machine reports in_progress without a live run.
func (s *Store) ResetStuckRuns(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE machines
         SET run_status = ?, run_message = 'interrupted by daemon restart', run_updated_at = ?, updated_at = ?
         WHERE run_status IN (?, ?)`,
		RunFailed, now, now,
		RunPending, RunInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck runs: %w", err)
	}
	return res.RowsAffected()
}

// HealthSummary aggregates machine counts for diagnostics.
type HealthSummary struct {
	Total      int
	Trained    int
	InProgress int
	Failed     int
}

// Health returns aggregate counts across all machines.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_status, parameters_json IS NOT NULL FROM machines`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("machine health: %w", err)
	}
	defer rows.Close()

	summary := HealthSummary{}
	for rows.Next() {
		var statusStr string
		var trained bool
		if err := rows.Scan(&statusStr, &trained); err != nil {
			return HealthSummary{}, err
		}
		summary.Total++
		if trained {
			summary.Trained++
		}
		switch RunStatus(statusStr) {
		case RunPending, RunInProgress:
			summary.InProgress++
		case RunFailed:
			summary.Failed++
		}
	}
	return summary, rows.Err()
}

const machineColumns = "id, owner_id, name, type, sensor_columns_json, run_status, run_progress, run_message, run_updated_at, parameters_json, last_result_json, created_at, updated_at"

func scanMachine(scanner interface{ Scan(dest ...any) error }) (*Machine, error) {
	var (
		id            string
		ownerID       string
		name          string
		machineType   sql.NullString
		columnsJSON   sql.NullString
		runStatus     string
		runProgress   int
		runMessage    sql.NullString
		runUpdatedRaw sql.NullString
		paramsJSON    sql.NullString
		resultJSON    sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&name,
		&machineType,
		&columnsJSON,
		&runStatus,
		&runProgress,
		&runMessage,
		&runUpdatedRaw,
		&paramsJSON,
		&resultJSON,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	m := &Machine{
		ID:      id,
		OwnerID: ownerID,
		Name:    name,
		Type:    machineType.String,
		Run: TrainingRunState{
			Status:   RunStatus(runStatus),
			Progress: runProgress,
			Message:  runMessage.String,
		},
	}

	if columnsJSON.Valid && columnsJSON.String != "" {
		if err := json.Unmarshal([]byte(columnsJSON.String), &m.SensorColumns); err != nil {
			return nil, fmt.Errorf("decode sensor columns: %w", err)
		}
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		params := &TrainingParameters{}
		if err := json.Unmarshal([]byte(paramsJSON.String), params); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
		m.Parameters = params
	}
	if resultJSON.Valid && resultJSON.String != "" {
		result := &PredictionResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), result); err != nil {
			return nil, fmt.Errorf("decode last result: %w", err)
		}
		m.LastResult = result
	}

	if runUpdatedRaw.Valid {
		if t, err := parseTimeString(runUpdatedRaw.String); err == nil {
			m.Run.UpdatedAt = t
		}
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		m.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		m.UpdatedAt = t
	}
	return m, nil
}

func marshalColumns(columns []string) (any, error) {
	if len(columns) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(columns)
	if err != nil {
		return nil, fmt.Errorf("marshal sensor columns: %w", err)
	}
	return string(data), nil
}

func marshalJSON(value any) (any, error) {
	switch v := value.(type) {
	case *TrainingParameters:
		if v == nil {
			return nil, nil
		}
	case *PredictionResult:
		if v == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
