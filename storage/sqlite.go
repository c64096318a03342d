package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"f2_scrooper/models"
)

// SQLiteStore keeps the operational record: cycles, their log lines, per-kind
// health and the command queue a running daemon polls.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		cycle_id TEXT,
		trigger TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		kinds_ok INTEGER DEFAULT 0,
		kinds_failed INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		kind TEXT
	);

	CREATE TABLE IF NOT EXISTS kind_stats (
		kind TEXT PRIMARY KEY,
		last_success_at DATETIME,
		last_status TEXT,
		seasons INTEGER DEFAULT 0,
		fingerprint TEXT,
		consecutive_failures INTEGER DEFAULT 0,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (cycle_id, trigger, started_at, status)
		VALUES (?, ?, ?, ?)`,
		run.CycleID.String(), run.Trigger, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, kinds_ok = ?, kinds_failed = ?, error = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.KindsOK, run.KindsFailed, run.Error, run.ID)
	return err
}

// LastRun returns the most recently started run, or nil when none exist.
func (s *SQLiteStore) LastRun() (*models.ScrapeRun, error) {
	row := s.db.QueryRow(`
		SELECT id, cycle_id, trigger, started_at, finished_at, status, kinds_ok, kinds_failed, COALESCE(error, '')
		FROM scrape_runs ORDER BY started_at DESC, id DESC LIMIT 1`)

	var run models.ScrapeRun
	err := row.Scan(&run.ID, &run.CycleID, &run.Trigger, &run.StartedAt, &run.FinishedAt,
		&run.Status, &run.KindsOK, &run.KindsFailed, &run.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, kind string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, kind)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, kind)
	return err
}

func (s *SQLiteStore) GetLogs(runID int64) ([]models.ScrapeLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, COALESCE(kind, '')
		FROM scrape_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &l.Kind); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// UpdateKindStats folds one outcome into the kind's running health. Skipped
// outcomes leave the row alone.
func (s *SQLiteStore) UpdateKindStats(o models.Outcome) error {
	if o.Status == models.OutcomeSkipped {
		return nil
	}

	now := time.Now()
	var lastSuccess *time.Time
	failures := 1
	if o.Status == models.OutcomeSuccess {
		lastSuccess = &now
		failures = 0
	}

	_, err := s.db.Exec(`
		INSERT INTO kind_stats (kind, last_success_at, last_status, seasons, fingerprint, consecutive_failures, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			last_success_at = COALESCE(excluded.last_success_at, kind_stats.last_success_at),
			last_status = excluded.last_status,
			seasons = CASE WHEN excluded.last_status = 'success' THEN excluded.seasons ELSE kind_stats.seasons END,
			fingerprint = CASE WHEN excluded.last_status = 'success' THEN excluded.fingerprint ELSE kind_stats.fingerprint END,
			consecutive_failures = CASE WHEN excluded.last_status = 'success' THEN 0 ELSE kind_stats.consecutive_failures + 1 END,
			updated_at = excluded.updated_at`,
		o.Kind, lastSuccess, o.Status, o.Seasons, o.Fingerprint, failures, now)
	return err
}

func (s *SQLiteStore) GetKindStats() ([]models.KindStats, error) {
	rows, err := s.db.Query(`
		SELECT kind, last_success_at, COALESCE(last_status, ''), seasons, COALESCE(fingerprint, ''), consecutive_failures
		FROM kind_stats ORDER BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.KindStats
	for rows.Next() {
		var st models.KindStats
		if err := rows.Scan(&st.Kind, &st.LastSuccessAt, &st.LastStatus, &st.Seasons, &st.Fingerprint, &st.ConsecutiveFail); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) (int64, error) {
	if !cmd.Valid() {
		return 0, fmt.Errorf("unknown command: %s", cmd)
	}
	var raw []byte
	if params != nil && *params != (models.CommandParams{}) {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return 0, err
		}
	}

	result, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, nullableJSON(raw), time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

func nullableJSON(raw []byte) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}
