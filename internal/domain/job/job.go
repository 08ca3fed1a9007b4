// Package job holds the JobRecord state machine: the persisted shape of
// one unit of work and the transition table that governs it (spec.md §3).
package job

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusCancelled
}

var ErrJobNotFound = errors.New("job not found")
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions enumerates the directed graph from spec.md invariant 1.
// failed->processing models an internal retry; replay via the DLQ always
// creates a brand-new Record rather than reusing this edge.
var transitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusComplete:  true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusFailed: {
		StatusProcessing: true,
	},
}

// CanTransition reports whether from->to is an edge in the state graph.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// HistoryEntry is one append-only record of a status transition.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     *string   `json:"error,omitempty"`
}

// Progress is the latest reported completion fraction and message.
type Progress struct {
	Pct     int    `json:"pct"`
	Message string `json:"message"`
}

// Record is the persisted shape of a job (the "jobs" table, spec.md §6.2).
type Record struct {
	JobID       int64           `json:"jobId"`
	TenantID    string          `json:"tenantId"`
	Type        string          `json:"type"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Payload     json.RawMessage `json:"payload"`
	Priority    string          `json:"priority"`
	History     []HistoryEntry  `json:"history"`
	Result      json.RawMessage `json:"result,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`
	Progress    *Progress       `json:"progress,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	DedupeKey   *string         `json:"dedupeKey,omitempty"`
	BatchID     *string         `json:"batchId,omitempty"`
	ScheduledAt *time.Time      `json:"scheduledAt,omitempty"`
	Duration    string          `json:"duration,omitempty"`
	EntityID    string          `json:"entityId"`
	Group       string          `json:"group"`
}

// CreateRequest is the input to create a new Record.
type CreateRequest struct {
	JobID       int64
	TenantID    string
	Type        string
	Payload     json.RawMessage
	Priority    string
	MaxAttempts int
	DedupeKey   *string
	BatchID     *string
	ScheduledAt *time.Time
	Duration    string
	EntityID    string
	Group       string
}

// New builds the initial queued Record for a CreateRequest, with its
// first history entry already appended (invariant 2: the last history
// entry's status always equals the record's status).
func New(req CreateRequest) Record {
	now := time.Now().UTC()

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 && req.MaxAttempts != 0 {
		maxAttempts = 3
	}

	return Record{
		JobID:       req.JobID,
		TenantID:    req.TenantID,
		Type:        req.Type,
		Status:      StatusQueued,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		Payload:     req.Payload,
		Priority:    req.Priority,
		History: []HistoryEntry{
			{Status: StatusQueued, Timestamp: now},
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		DedupeKey:   req.DedupeKey,
		BatchID:     req.BatchID,
		ScheduledAt: req.ScheduledAt,
		Duration:    req.Duration,
		EntityID:    req.EntityID,
		Group:       req.Group,
	}
}

// Apply validates and performs a transition in-place, appending a history
// entry. Invalid transitions are no-ops (spec invariant 1) and the caller
// is expected to log at warn when ok is false.
func (r *Record) Apply(to Status, errMsg *string) (ok bool) {
	if !CanTransition(r.Status, to) {
		return false
	}

	now := time.Now().UTC()
	wasFailed := r.Status == StatusFailed
	r.Status = to
	r.UpdatedAt = now
	r.History = append(r.History, HistoryEntry{Status: to, Timestamp: now, Error: errMsg})

	if to == StatusProcessing && wasFailed {
		r.Attempts++
	}
	if to == StatusComplete || to == StatusCancelled {
		r.CompletedAt = &now
	}
	return true
}

// SetProgress clamps pct into [0,100]; non-finite values are expected to
// be rejected by the caller (internal/progress) before reaching here.
func (r *Record) SetProgress(pct int, message string) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	r.Progress = &Progress{Pct: pct, Message: message}
}
