package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"pharmascan/internal/dto"
	"pharmascan/internal/logger"
	"pharmascan/internal/models"
	"pharmascan/internal/repository"
	"pharmascan/internal/services/barcode"
	"pharmascan/internal/services/export"
	"pharmascan/internal/services/ledger"
)

// GetDetectionsHandler lists records of the running session, or of the database with source=db.
// Filters: within (duration such as 30s or 5m), valid, pharmaceutical, type, code, page, limit.
func GetDetectionsHandler(l *ledger.Ledger, repo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 50)

		filter := &dto.DetectionFilters{
			Valid:          parseTriState(q.Get("valid")),
			Pharmaceutical: parseTriState(q.Get("pharmaceutical")),
			Payload:        q.Get("code"),
		}
		if t := q.Get("type"); t != "" {
			filter.Symbology = barcode.ParseSymbology(t)
		}
		if within := q.Get("within"); within != "" {
			d, err := parseWithin(within)
			if err != nil {
				http.Error(w, "Invalid within parameter", http.StatusBadRequest)
				return
			}
			filter.Since = time.Now().Add(-d)
		}

		data := dto.DetectionsData{CurrentPage: page, Limit: limit}

		if q.Get("source") == "db" {
			if repo == nil {
				http.Error(w, "Database not configured", http.StatusServiceUnavailable)
				return
			}
			total, err := repo.Count(filter)
			if err != nil {
				logger.Error("Error counting detections: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			filter.Limit, filter.Offset = limit, (page-1)*limit
			records, err := repo.GetAll(filter)
			if err != nil {
				logger.Error("Error querying detections from database: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			data.Source, data.Records, data.Length = "db", records, total
		} else {
			total := len(l.Records(filter))
			filter.Limit, filter.Offset = limit, (page-1)*limit
			data.Source, data.SessionID = "session", l.SessionID()
			data.Records, data.Length = l.Records(filter), total
		}

		if data.Records == nil {
			data.Records = []models.DetectionRecord{}
		}
		data.TotalPages = (data.Length + limit - 1) / limit
		writeJSON(w, logger, data)
	}
}

// GetDuplicatesHandler returns the payloads recorded more than once in this session.
func GetDuplicatesHandler(l *ledger.Ledger, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dups := l.Duplicates()
		if dups == nil {
			dups = []models.Duplicate{}
		}
		writeJSON(w, logger, dups)
	}
}

// GetStatsHandler returns the session statistics.
func GetStatsHandler(l *ledger.Ledger, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, l.Statistics())
	}
}

// ExportHandler streams the session as json, csv or yaml (format query parameter, json by default).
func ExportHandler(l *ledger.Ledger, exporter *export.Exporter, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("format")
		if name == "" {
			name = string(export.JSON)
		}
		format, err := export.ParseFormat(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", `attachment; filename="`+exporter.DefaultFilename(format)+`"`)
		if err := exporter.Write(w, l, format); err != nil {
			logger.Error("Error writing %s export: %v", format, err)
		}
	}
}

// GetDetectionHandler returns one record by ID, looking in the session first and then in the database.
func GetDetectionHandler(l *ledger.Ledger, repo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		for _, rec := range l.Records(nil) {
			if rec.ID == id {
				writeJSON(w, logger, rec)
				return
			}
		}

		if repo != nil {
			rec, err := repo.GetByID(id)
			if err != nil {
				logger.Error("Error getting detection %s: %v", id, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if rec != nil {
				writeJSON(w, logger, rec)
				return
			}
		}
		http.Error(w, "Detection not found", http.StatusNotFound)
	}
}

// ClearHandler clears the session history and the cooldown gate.
// With source=db it deletes stored records instead, limited to one session when session is given.
func ClearHandler(l *ledger.Ledger, repo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("source") != "db" {
			cleared := l.Len()
			l.Clear()
			logger.Info("🗑️ History cleared over HTTP (%d records)", cleared)
			writeJSON(w, logger, map[string]interface{}{"status": "cleared", "records": cleared})
			return
		}

		if repo == nil {
			http.Error(w, "Database not configured", http.StatusServiceUnavailable)
			return
		}

		var (
			deleted int64
			err     error
		)
		if session := q.Get("session"); session != "" {
			deleted, err = repo.DeleteBySession(session)
		} else {
			deleted, err = repo.DeleteAll()
		}
		if err != nil {
			logger.Error("Error deleting detections: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		logger.Info("🗑️ Deleted %d stored detections", deleted)
		writeJSON(w, logger, map[string]interface{}{"status": "cleared", "records": deleted})
	}
}

// GetSessionsHandler lists the session IDs stored in the database.
func GetSessionsHandler(repo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			http.Error(w, "Database not configured", http.StatusServiceUnavailable)
			return
		}
		sessions, err := repo.GetSessions()
		if err != nil {
			logger.Error("Error listing sessions: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if sessions == nil {
			sessions = []string{}
		}
		writeJSON(w, logger, sessions)
	}
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseTriState maps "true"/"false" to a filter value and anything else to "no constraint".
func parseTriState(v string) *bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	return &b
}

// parseWithin accepts Go durations ("90s", "5m") or a plain number of seconds.
func parseWithin(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, strconv.ErrRange
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, strconv.ErrSyntax
	}
	return d, nil
}
