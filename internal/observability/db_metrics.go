package observability

import (
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ObserveDB wraps a single logical DB operation (e.g. "get_job",
// "claim_stuck") with duration and error-class metrics, returning fn's
// error unchanged so callers can keep their normal error handling.
func (p *Prom) ObserveDB(op string, fn func() error) error {
	start := time.Now()
	err := fn()

	status := "ok"
	if err != nil {
		status = "error"
		p.DbErrorsTotal.WithLabelValues(op, classifyDBErr(err)).Inc()
	}
	p.DbQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

// pgErrorClasses maps the Postgres error codes worth telling apart on a
// dashboard to a low-cardinality metric label; any other code is
// labelled "pg_<code>".
var pgErrorClasses = map[string]string{
	"23505": "unique_violation",
	"40001": "serialization_failure",
	"40P01": "deadlock",
	"57014": "query_canceled",
}

func classifyDBErr(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if class, ok := pgErrorClasses[pgErr.Code]; ok {
			return class
		}
		return "pg_" + pgErr.Code
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	default:
		return "unknown"
	}
}
