package httpapi

import (
	"database/sql"
	"net/http"
)

// NewMux returns the base routes: /healthz and, when metrics is not nil,
// /metrics. Feature modules register their own routes on it.
func NewMux(db *sql.DB, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}
