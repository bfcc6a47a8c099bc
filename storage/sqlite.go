package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"apt_scrooper/models"
)

// SQLiteStore keeps the daemon's operational state: run history, run logs,
// per-provider stats and the command queue. Catalog data lives in Postgres.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
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
		provider TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		properties_found INTEGER DEFAULT 0,
		buildings_new INTEGER DEFAULT 0,
		buildings_updated INTEGER DEFAULT 0,
		units_written INTEGER DEFAULT 0,
		specials_created INTEGER DEFAULT 0,
		specials_updated INTEGER DEFAULT 0,
		conflicts INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		provider TEXT
	);

	CREATE TABLE IF NOT EXISTS provider_stats (
		provider TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_runs INTEGER,
		success_rate REAL,
		avg_run_duration_sec INTEGER
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
	CREATE INDEX IF NOT EXISTS idx_runs_provider ON scrape_runs(provider, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ===========================================================================
// Runs
// ===========================================================================

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (provider, started_at, status)
		VALUES (?, ?, ?)`,
		run.Provider, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, properties_found = ?,
			buildings_new = ?, buildings_updated = ?, units_written = ?,
			specials_created = ?, specials_updated = ?, conflicts = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.PropertiesFound,
		run.BuildingsNew, run.BuildingsUpdated, run.UnitsWritten,
		run.SpecialsCreated, run.SpecialsUpdated, run.Conflicts, run.ErrorsCount, run.ID)
	return err
}

const runColumns = `id, provider, started_at, finished_at, status, properties_found,
	buildings_new, buildings_updated, units_written, specials_created,
	specials_updated, conflicts, errors_count`

func (s *SQLiteStore) GetRun(id int64) (*models.ScrapeRun, error) {
	return scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM scrape_runs WHERE id = ?`, id))
}

// LastFinishedRun returns the provider's most recent finished run, or nil
// when it has none.
func (s *SQLiteStore) LastFinishedRun(provider string) (*models.ScrapeRun, error) {
	return scanRun(s.db.QueryRow(`
		SELECT `+runColumns+` FROM scrape_runs
		WHERE provider = ? AND finished_at IS NOT NULL
		ORDER BY started_at DESC, id DESC LIMIT 1`, provider))
}

func scanRun(row *sql.Row) (*models.ScrapeRun, error) {
	var r models.ScrapeRun
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Provider, &r.StartedAt, &finished, &r.Status, &r.PropertiesFound,
		&r.BuildingsNew, &r.BuildingsUpdated, &r.UnitsWritten, &r.SpecialsCreated,
		&r.SpecialsUpdated, &r.Conflicts, &r.ErrorsCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// ===========================================================================
// Logs
// ===========================================================================

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, provider string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, provider)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, provider)
	return err
}

func (s *SQLiteStore) RunLogs(runID int64) ([]models.ScrapeLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, provider
		FROM scrape_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		var rid sql.NullInt64
		var provider sql.NullString
		if err := rows.Scan(&l.ID, &rid, &l.Timestamp, &l.Level, &l.Message, &provider); err != nil {
			return nil, err
		}
		if rid.Valid {
			l.RunID = &rid.Int64
		}
		l.Provider = provider.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ===========================================================================
// Provider stats
// ===========================================================================

func (s *SQLiteStore) UpdateProviderStats(provider string) error {
	_, err := s.db.Exec(`
		INSERT INTO provider_stats (provider, last_run_at, last_run_status, total_runs,
			success_rate, avg_run_duration_sec)
		SELECT
			?,
			(SELECT started_at FROM scrape_runs WHERE provider = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT status FROM scrape_runs WHERE provider = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT COUNT(*) FROM scrape_runs WHERE provider = ?),
			(SELECT CAST(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS REAL) /
				NULLIF(COUNT(*), 0) FROM scrape_runs WHERE provider = ?),
			(SELECT AVG(CAST((julianday(finished_at) - julianday(started_at)) * 86400 AS INTEGER))
				FROM scrape_runs WHERE provider = ? AND finished_at IS NOT NULL)
		ON CONFLICT(provider) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_runs = excluded.total_runs,
			success_rate = excluded.success_rate,
			avg_run_duration_sec = excluded.avg_run_duration_sec`,
		provider, provider, provider, provider, provider, provider)
	return err
}

func (s *SQLiteStore) GetProviderStats(provider string) (*models.ProviderStats, error) {
	row := s.db.QueryRow(`
		SELECT provider, last_run_at, COALESCE(last_run_status, ''), COALESCE(total_runs, 0),
			COALESCE(success_rate, 0), COALESCE(avg_run_duration_sec, 0)
		FROM provider_stats WHERE provider = ?`, provider)

	var st models.ProviderStats
	var lastRun sql.NullTime
	err := row.Scan(&st.Provider, &lastRun, &st.LastRunStatus, &st.TotalRuns, &st.SuccessRate, &st.AvgRunDurationSec)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		st.LastRunAt = &lastRun.Time
	}
	return &st, nil
}

func (s *SQLiteStore) GetLastRunTime(provider string) (time.Time, error) {
	st, err := s.GetProviderStats(provider)
	if err != nil || st == nil || st.LastRunAt == nil {
		return time.Time{}, err
	}
	return *st.LastRunAt, nil
}

// ===========================================================================
// Commands
// ===========================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) (int64, error) {
	var raw []byte
	if params != nil {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return 0, err
		}
	}
	result, err := s.db.Exec(`
		INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, raw, time.Now())
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
		var processed sql.NullTime
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &processed); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		if processed.Valid {
			cmd.ProcessedAt = &processed.Time
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
	if len(cmd.Params) == 0 || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}
