package ipc

import (
	"time"

	"pidish/internal/history"
	"pidish/internal/printer"
)

// SendRequest carries one wire command.
type SendRequest struct {
	Wire map[string]string `json:"wire"`
}

// SendResponse reports whether the command was queued.
type SendResponse struct {
	Accepted bool   `json:"accepted"`
	Verb     string `json:"verb"`
	Message  string `json:"message"`
}

// StatusRequest fetches daemon and printer status.
type StatusRequest struct{}

// StatusResponse combines the latest printer snapshot with daemon metadata.
type StatusResponse struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	StartedAt     time.Time      `json:"started_at"`
	Printer       printer.Status `json:"printer"`
	Connector     string         `json:"connector"`
	LockPath      string         `json:"lock_path"`
	HistoryPath   string         `json:"history_path"`
	VariablesPath string         `json:"variables_path"`
	JobStats      map[string]int `json:"job_stats"`
}

// HistoryRequest lists recent jobs; zero Limit means all.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse contains job records, newest first.
type HistoryResponse struct {
	Jobs []history.Record `json:"jobs"`
}

// JobDescribeRequest fetches one job by id.
type JobDescribeRequest struct {
	ID string `json:"id"`
}

// JobDescribeResponse contains a single job.
type JobDescribeResponse struct {
	Job history.Record `json:"job"`
}

// HistoryClearRequest removes finished jobs.
type HistoryClearRequest struct{}

// HistoryClearResponse reports number of removed entries.
type HistoryClearResponse struct {
	Removed int64 `json:"removed"`
}

// ObjectsRequest lists printable objects.
type ObjectsRequest struct{}

// Object is one printable slice directory.
type Object struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Slices int    `json:"slices"`
}

// ObjectsResponse contains the objects under the configured root.
type ObjectsResponse struct {
	Root    string   `json:"root"`
	Objects []Object `json:"objects"`
}

// VariablesRequest fetches the persisted job parameters.
type VariablesRequest struct{}

// VariablesResponse maps variable name to its stored text.
type VariablesResponse struct {
	Values map[string]string `json:"values"`
}
