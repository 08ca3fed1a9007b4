package jobs

import "encoding/json"

// Envelope is the submission input accepted by the Router (spec.md §3).
// Type is an open string keyed against the Handler Registry, not the
// closed JobType enum the teacher's events-platform handlers use
// internally for their own payload codec.
type Envelope struct {
	Type        string          `json:"type" binding:"required"`
	Payload     json.RawMessage `json:"payload"`
	TenantID    string          `json:"tenantId" binding:"required"`
	Priority    Priority        `json:"priority"`
	MaxAttempts int             `json:"maxAttempts"`
	DedupeKey   string          `json:"dedupeKey,omitempty"`
	BatchID     string          `json:"batchId,omitempty"`
	ScheduledAt *int64          `json:"scheduledAt,omitempty"` // Unix ms
	Duration    Duration        `json:"duration,omitempty"`

	RequestID string `json:"requestId,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// SubmitOptions mirrors the external submit(type, payload, opts) call
// shape (spec.md §6.1), keeping MaxAttempts as a pointer so callers can
// distinguish "not specified" (apply default 3) from "explicitly zero"
// (fail on first error, per spec §8).
type SubmitOptions struct {
	TenantID    string
	Priority    Priority
	MaxAttempts *int
	DedupeKey   string
	BatchID     string
	ScheduledAt *int64
	Duration    Duration
	RequestID   string
	IPAddress   string
	UserAgent   string
}

// BuildEnvelope assembles an Envelope from a type/payload/opts triple,
// applying the documented defaults.
func BuildEnvelope(jobType string, payload json.RawMessage, opts SubmitOptions) Envelope {
	e := Envelope{
		Type:        jobType,
		Payload:     payload,
		TenantID:    opts.TenantID,
		Priority:    opts.Priority,
		DedupeKey:   opts.DedupeKey,
		BatchID:     opts.BatchID,
		ScheduledAt: opts.ScheduledAt,
		Duration:    opts.Duration,
		RequestID:   opts.RequestID,
		IPAddress:   opts.IPAddress,
		UserAgent:   opts.UserAgent,
	}
	if opts.MaxAttempts != nil {
		e.MaxAttempts = *opts.MaxAttempts
	} else {
		e.MaxAttempts = 3
	}
	if !e.Priority.IsValid() {
		e.Priority = PriorityNormal
	}
	if e.Duration == "" {
		e.Duration = DurationShort
	}
	return e
}
