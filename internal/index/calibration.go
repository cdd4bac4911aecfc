package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CalibrationRow is one scorer's persisted quantile breakpoints.
type CalibrationRow struct {
	Scorer       string
	Breakpoints  []float64
	BulletCount  int
	CalibratedAt time.Time
	OpsSince     int
}

// SaveCalibration persists a scorer's freshly computed breakpoints and
// resets ops_since to 0.
func (idx *Index) SaveCalibration(scorer string, breakpoints []float64, bulletCount int) error {
	data, err := json.Marshal(breakpoints)
	if err != nil {
		return fmt.Errorf("index: marshal breakpoints: %w", err)
	}
	_, err = idx.db.Exec(`
		INSERT INTO calibration (scorer, breakpoints, bullet_count, calibrated_at, ops_since)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(scorer) DO UPDATE SET
			breakpoints = excluded.breakpoints,
			bullet_count = excluded.bullet_count,
			calibrated_at = excluded.calibrated_at,
			ops_since = 0`,
		scorer, string(data), bulletCount, time.Now().UTC())
	if err != nil {
		return wrapSchemaErr(err, "save calibration")
	}
	return nil
}

// GetCalibration returns a scorer's calibration row, or (nil, nil) if it
// has never been calibrated.
func (idx *Index) GetCalibration(scorer string) (*CalibrationRow, error) {
	var row CalibrationRow
	var breakpointsJSON string
	err := idx.db.QueryRow(`
		SELECT scorer, breakpoints, bullet_count, calibrated_at, ops_since
		FROM calibration WHERE scorer = ?`, scorer).
		Scan(&row.Scorer, &breakpointsJSON, &row.BulletCount, &row.CalibratedAt, &row.OpsSince)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapSchemaErr(err, "get calibration")
	}
	if err := json.Unmarshal([]byte(breakpointsJSON), &row.Breakpoints); err != nil {
		return nil, fmt.Errorf("index: unmarshal breakpoints: %w", err)
	}
	return &row, nil
}

// IncrementOpsSince bumps every scorer's ops_since counter by one,
// called once per index mutation so the Calibrator can detect drift
// (stale after >=20 index mutations).
func (idx *Index) IncrementOpsSince() error {
	_, err := idx.db.Exec(`UPDATE calibration SET ops_since = ops_since + 1`)
	if err != nil {
		return wrapSchemaErr(err, "increment ops_since")
	}
	return nil
}
