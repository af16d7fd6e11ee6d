package db

import (
	"database/sql"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/greensort-data/sortstream/internal/waste"
)

// CO2PerRecyclableKg is the estimated CO2 saved per recyclable item.
const CO2PerRecyclableKg = 0.25

// Classification is one row of classification_history.
type Classification struct {
	ID               int64       `json:"id"`
	ClassName        waste.Class `json:"class_name"`
	ClassNameVN      string      `json:"class_name_vn"`
	Confidence       float64     `json:"confidence"`
	BinType          waste.Bin   `json:"bin_type"`
	ProcessingTimeMS float64     `json:"processing_time_ms"`
	TrackID          *int        `json:"track_id,omitempty"`
	SessionID        string      `json:"session_id,omitempty"`
	Source           string      `json:"source"`
	CreatedAt        time.Time   `json:"created_at"`
}

// RecordClassification inserts a history row and returns its ID.
func (db *DB) RecordClassification(c Classification) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO classification_history
			(class_name, class_name_vn, confidence, bin_type, processing_time_ms, track_id, session_id, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ClassName), c.ClassNameVN, c.Confidence, string(c.BinType),
		c.ProcessingTimeMS, c.TrackID, c.SessionID, c.Source,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record classification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read classification id: %w", err)
	}
	return id, nil
}

// RecentClassifications returns the newest rows, newest first.
func (db *DB) RecentClassifications(limit int) ([]Classification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, class_name, class_name_vn, confidence, bin_type,
		       processing_time_ms, track_id, session_id, source, created_at
		FROM classification_history
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Classification
	for rows.Next() {
		var c Classification
		var trackID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.ClassName, &c.ClassNameVN, &c.Confidence, &c.BinType,
			&c.ProcessingTimeMS, &trackID, &c.SessionID, &c.Source, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if trackID.Valid {
			v := int(trackID.Int64)
			c.TrackID = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SummaryStats aggregates the last N days of history.
type SummaryStats struct {
	TotalClassifications int     `json:"total_classifications"`
	RecyclableCount      int     `json:"recyclable_count"`
	CO2SavedKg           float64 `json:"co2_saved_kg"`
	AccuracyPercent      float64 `json:"accuracy_percent"`
	FeedbackCount        int     `json:"feedback_count"`
	ConfidenceMean       float64 `json:"confidence_mean"`
	ConfidenceStddev     float64 `json:"confidence_stddev"`
}

// Summary computes aggregate stats over the trailing window. Accuracy
// comes from user feedback; with no feedback it reports 0.
func (db *DB) Summary(days int) (SummaryStats, error) {
	var s SummaryStats
	since := sinceClause(days)

	err := db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN bin_type = ? THEN 1 ELSE 0 END), 0)
		FROM classification_history
		WHERE created_at >= `+since,
		string(waste.BinRecyclable),
	).Scan(&s.TotalClassifications, &s.RecyclableCount)
	if err != nil {
		return s, fmt.Errorf("failed to query summary: %w", err)
	}
	s.CO2SavedKg = float64(s.RecyclableCount) * CO2PerRecyclableKg

	var correct int
	err = db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN f.correct THEN 1 ELSE 0 END), 0)
		FROM feedback f
		JOIN classification_history h ON h.id = f.history_id
		WHERE h.created_at >= ` + since,
	).Scan(&s.FeedbackCount, &correct)
	if err != nil {
		return s, fmt.Errorf("failed to query feedback: %w", err)
	}
	if s.FeedbackCount > 0 {
		s.AccuracyPercent = float64(correct) / float64(s.FeedbackCount) * 100
	}

	confs, err := db.confidences(since)
	if err != nil {
		return s, err
	}
	if len(confs) > 0 {
		s.ConfidenceMean = stat.Mean(confs, nil)
		if len(confs) > 1 {
			s.ConfidenceStddev = stat.StdDev(confs, nil)
		}
	}
	return s, nil
}

func (db *DB) confidences(since string) ([]float64, error) {
	rows, err := db.Query(`SELECT confidence FROM classification_history WHERE created_at >= ` + since)
	if err != nil {
		return nil, fmt.Errorf("failed to query confidences: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan confidence: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DayCount is one day of the classification trend.
type DayCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Trend is the daily classification counts plus a least-squares slope
// (classifications per day) over the window.
type Trend struct {
	Days        []DayCount `json:"days"`
	SlopePerDay float64    `json:"slope_per_day"`
}

// TrendDaily returns per-day counts for the trailing window, oldest
// first, with a linear-regression slope over the observed days.
func (db *DB) TrendDaily(days int) (Trend, error) {
	var t Trend
	rows, err := db.Query(`
		SELECT DATE(created_at) AS day, COUNT(*)
		FROM classification_history
		WHERE created_at >= ` + sinceClause(days) + `
		GROUP BY day ORDER BY day ASC`)
	if err != nil {
		return t, fmt.Errorf("failed to query trend: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return t, fmt.Errorf("failed to scan trend row: %w", err)
		}
		t.Days = append(t.Days, d)
	}
	if err := rows.Err(); err != nil {
		return t, err
	}

	if len(t.Days) > 1 {
		xs := make([]float64, len(t.Days))
		ys := make([]float64, len(t.Days))
		for i, d := range t.Days {
			xs[i] = float64(i)
			ys[i] = float64(d.Count)
		}
		_, t.SlopePerDay = stat.LinearRegression(xs, ys, nil, false)
	}
	return t, nil
}

// BinCount is one bin's share of classifications.
type BinCount struct {
	Bin   waste.Bin `json:"bin_type"`
	Count int       `json:"count"`
}

// BinDistribution returns counts per bin for the trailing window,
// descending by count.
func (db *DB) BinDistribution(days int) ([]BinCount, error) {
	rows, err := db.Query(`
		SELECT bin_type, COUNT(*) AS n
		FROM classification_history
		WHERE created_at >= ` + sinceClause(days) + `
		GROUP BY bin_type ORDER BY n DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query bin distribution: %w", err)
	}
	defer rows.Close()

	var out []BinCount
	for rows.Next() {
		var b BinCount
		if err := rows.Scan(&b.Bin, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan bin row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ClassCount is one class's share of classifications.
type ClassCount struct {
	Class waste.Class `json:"class_name"`
	Count int         `json:"count"`
}

// ClassDistribution returns the topN classes for the trailing window,
// descending by count.
func (db *DB) ClassDistribution(days, topN int) ([]ClassCount, error) {
	if topN <= 0 {
		topN = 10
	}
	rows, err := db.Query(`
		SELECT class_name, COUNT(*) AS n
		FROM classification_history
		WHERE created_at >= `+sinceClause(days)+`
		GROUP BY class_name ORDER BY n DESC LIMIT ?`, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to query class distribution: %w", err)
	}
	defer rows.Close()

	var out []ClassCount
	for rows.Next() {
		var c ClassCount
		if err := rows.Scan(&c.Class, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan class row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordFeedback stores a user correction for a history row.
func (db *DB) RecordFeedback(historyID int64, correct bool, correctedClass waste.Class, note string) error {
	var exists int
	if err := db.QueryRow(`SELECT COUNT(*) FROM classification_history WHERE id = ?`, historyID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check history row: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("history row %d not found", historyID)
	}
	_, err := db.Exec(`
		INSERT INTO feedback (history_id, correct, corrected_class, note)
		VALUES (?, ?, ?, ?)`,
		historyID, correct, string(correctedClass), note)
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	return nil
}

// RecordContribution stores a labeled training image reference.
func (db *DB) RecordContribution(imagePath string, label waste.Class) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO contributions (image_path, label) VALUES (?, ?)`,
		imagePath, string(label))
	if err != nil {
		return 0, fmt.Errorf("failed to record contribution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read contribution id: %w", err)
	}
	return id, nil
}

// sinceClause builds the trailing-window cutoff expression. days <= 0
// means all history.
func sinceClause(days int) string {
	if days <= 0 {
		return "DATETIME(0, 'unixepoch')"
	}
	return fmt.Sprintf("DATETIME('now', '-%d days')", days)
}
