// Package storage appends periodic solution/survey rows to a local sqlite
// file for post-session review. It is write-mostly and entirely optional;
// the live system never reads it back.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS solution_log (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    at_utc       TEXT    NOT NULL,
    fix_kind     TEXT    NOT NULL,
    rtk_age_sec  INTEGER NOT NULL,
    rtk_ratio    INTEGER NOT NULL,
    east_m       REAL    NOT NULL,
    north_m      REAL    NOT NULL,
    up_m         REAL    NOT NULL,
    slips_gps    INTEGER NOT NULL,
    slips_bds    INTEGER NOT NULL,
    slips_gal    INTEGER NOT NULL,
    lat_deg      REAL    NOT NULL,
    lon_deg      REAL    NOT NULL,
    sats_gps     INTEGER NOT NULL,
    sats_bds     INTEGER NOT NULL,
    sats_gal     INTEGER NOT NULL,
    survey_state TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_solution_log_at ON solution_log(at_utc);
`

const insertRowSQL = `
INSERT INTO solution_log (
    at_utc, fix_kind, rtk_age_sec, rtk_ratio,
    east_m, north_m, up_m,
    slips_gps, slips_bds, slips_gal,
    lat_deg, lon_deg,
    sats_gps, sats_bds, sats_gal,
    survey_state
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Row is one logged sample of the live model.
type Row struct {
	At          time.Time
	FixKind     string
	AgeSec      int
	Ratio       int
	EastM       float64
	NorthM      float64
	UpM         float64
	SlipsGPS    int
	SlipsBDS    int
	SlipsGAL    int
	LatDeg      float64
	LonDeg      float64
	SatsGPS     int
	SatsBDS     int
	SatsGAL     int
	SurveyState string
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", path))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	if _, err := db.Exec(initSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Append(ctx context.Context, row Row) error {
	_, err := s.db.ExecContext(ctx, insertRowSQL,
		row.At.UTC().Format(time.RFC3339Nano), row.FixKind, row.AgeSec, row.Ratio,
		row.EastM, row.NorthM, row.UpM,
		row.SlipsGPS, row.SlipsBDS, row.SlipsGAL,
		row.LatDeg, row.LonDeg,
		row.SatsGPS, row.SatsBDS, row.SatsGAL,
		row.SurveyState,
	)
	if err != nil {
		return fmt.Errorf("storage: inserting row: %w", err)
	}
	return nil
}

// RowCount reports how many samples have been logged.
func (s *Store) RowCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM solution_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: counting rows: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
