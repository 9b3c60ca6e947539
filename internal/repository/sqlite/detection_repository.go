package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"pharmascan/internal/dto"
	"pharmascan/internal/models"
	"pharmascan/internal/services/barcode"
)

const insertDetection = `
	INSERT OR IGNORE INTO detections (id, session_id, code, symbology, timestamp, valid, pharmaceutical)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

const selectDetection = `SELECT id, session_id, code, symbology, timestamp, valid, pharmaceutical FROM detections`

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// Insert stores one record. A record whose ID is already stored is ignored.
func (r *DetectionRepository) Insert(rec *models.DetectionRecord) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(insertDetection, args(rec)...); err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

// InsertBatch stores records in a single transaction and returns how many were new.
func (r *DetectionRepository) InsertBatch(records []models.DetectionRecord) (int, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertDetection)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range records {
		res, err := stmt.Exec(args(&records[i])...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert detection: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit detections: %w", err)
	}
	return inserted, nil
}

func args(rec *models.DetectionRecord) []interface{} {
	return []interface{}{
		rec.ID, rec.SessionID, rec.Payload, string(rec.Symbology), rec.Timestamp.UTC(), rec.IsValid, rec.IsPharmaceutical,
	}
}

// GetByID returns nil without error when the record does not exist.
func (r *DetectionRepository) GetByID(id string) (*models.DetectionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rec, err := scan(r.db.Conn().QueryRow(selectDetection+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}
	return rec, nil
}

// GetAll returns records matching filter ordered by timestamp, oldest first.
func (r *DetectionRepository) GetAll(filter *dto.DetectionFilters) ([]models.DetectionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, params := whereClause(filter)
	query := selectDetection + where + ` ORDER BY timestamp ASC, rowid ASC`

	if filter != nil && (filter.Limit > 0 || filter.Offset > 0) {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		query += " LIMIT ? OFFSET ?"
		params = append(params, limit, max(filter.Offset, 0))
	}

	rows, err := r.db.Conn().Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var records []models.DetectionRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Count returns the number of records matching filter. Limit and offset are ignored.
func (r *DetectionRepository) Count(filter *dto.DetectionFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, params := whereClause(filter)
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM detections`+where, params...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count detections: %w", err)
	}
	return count, nil
}

// GetSessions returns the distinct session IDs, most recent first.
func (r *DetectionRepository) GetSessions() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT session_id FROM detections
		GROUP BY session_id
		ORDER BY MAX(timestamp) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DeleteBySession removes all records of one session.
func (r *DetectionRepository) DeleteBySession(sessionID string) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	res, err := r.db.Conn().Exec(`DELETE FROM detections WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete detections: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAll removes every stored record.
func (r *DetectionRepository) DeleteAll() (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	res, err := r.db.Conn().Exec(`DELETE FROM detections`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete detections: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner) (*models.DetectionRecord, error) {
	var (
		rec       models.DetectionRecord
		symbology string
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.Payload, &symbology, &rec.Timestamp, &rec.IsValid, &rec.IsPharmaceutical); err != nil {
		return nil, err
	}
	rec.Symbology = barcode.Symbology(symbology)
	return &rec, nil
}

func whereClause(filter *dto.DetectionFilters) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	var (
		conds  []string
		params []interface{}
	)
	if filter.Valid != nil {
		conds = append(conds, "valid = ?")
		params = append(params, *filter.Valid)
	}
	if filter.Pharmaceutical != nil {
		conds = append(conds, "pharmaceutical = ?")
		params = append(params, *filter.Pharmaceutical)
	}
	if filter.Symbology != "" {
		conds = append(conds, "symbology = ?")
		params = append(params, string(filter.Symbology))
	}
	if filter.Payload != "" {
		conds = append(conds, "code = ?")
		params = append(params, filter.Payload)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		params = append(params, filter.Since.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), params
}
