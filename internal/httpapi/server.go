package httpapi

import (
	"net/http"
	"time"

	"rpi-weatherstation/internal/config"
)

func NewServer(cfg config.Config, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(cors(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
