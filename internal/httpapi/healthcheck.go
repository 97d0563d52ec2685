package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"rpi-weatherstation/internal/utils"
)

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db *sql.DB
}

type healthzResponse struct {
	Status string `json:"status"`
	// Schema is the newest applied migration, empty before the first run.
	Schema string `json:"schema"`
}

func NewHealthchecker(db *sql.DB) healthchecker {
	return &healthcheckerImpl{db: db}
}

func (h *healthcheckerImpl) schemaVersion(ctx context.Context) (string, error) {
	var n int
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&n)
	if err != nil || n == 0 {
		return "", err
	}
	var v string
	err = h.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), '') FROM schema_migrations`).Scan(&v)
	return v, err
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var ok int
	if err := h.db.QueryRowContext(r.Context(), `SELECT 1`).Scan(&ok); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}
	schema, err := h.schemaVersion(r.Context())
	if err != nil {
		slog.Error("failed to read schema version", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to read schema version")
		return
	}
	utils.WriteJSON(w, http.StatusOK, healthzResponse{Status: "ok", Schema: schema})
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB) {
	mux.HandleFunc("GET /healthz", NewHealthchecker(db).handleHealthz)
}
