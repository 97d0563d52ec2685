package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

func parseTime(q string, name string) (time.Time, error) {
	if q == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, q)
	if err != nil {
		return time.Time{}, errors.New("invalid '" + name + "' (expected RFC3339)")
	}
	return t, nil
}

func parseReadingsQuery(r *http.Request) (from time.Time, to time.Time, limit int, err error) {
	q := r.URL.Query()
	if from, err = parseTime(q.Get("from"), "from"); err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	if to, err = parseTime(q.Get("to"), "to"); err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, 0, errors.New("'from' must be <= 'to'")
	}

	limit = defaultLimit
	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		switch {
		case convErr != nil:
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'limit' (expected integer)")
		case n <= 0:
			return time.Time{}, time.Time{}, 0, errors.New("'limit' must be > 0")
		case n > maxLimit:
			return time.Time{}, time.Time{}, 0, errors.New("'limit' must be <= 1000")
		}
		limit = n
	}
	return from, to, limit, nil
}
