// Package uploader defines the fetch-and-persist pipeline and the core types
// shared across subsystems.
package uploader

import "time"

// Decision holds the domain fields of one Yargıtay decision.
// Field names mirror the upstream API payload where one exists.
type Decision struct {
	ID           string `json:"id"`
	Daire        string `json:"daire,omitempty"`
	EsasNo       string `json:"esasNo,omitempty"`
	KararNo      string `json:"kararNo,omitempty"`
	KararTarihi  string `json:"kararTarihi,omitempty"` // normalized to YYYY-MM-DD
	Ozet         string `json:"ozet,omitempty"`
	ArananKelime string `json:"arananKelime,omitempty"`
	IcerikHam    string `json:"icerik_ham"`
}

// Record is one fetched unit of data ready to be persisted.
// Identity is stable across runs for the same underlying source item:
// the upstream document id when present, otherwise a content digest.
type Record struct {
	Identity  string    `json:"identity"`
	FetchedAt time.Time `json:"fetched_at"`
	Decision  Decision  `json:"decision"`
}

// Query describes one run request: a free-text search term and a positive
// bound on the number of records persisted.
type Query struct {
	Term  string
	Limit int
}

// RunState represents the lifecycle state of a pipeline run.
type RunState string

// Run states reported in the final Result.
const (
	StateIdle       RunState = "idle"
	StateFetching   RunState = "fetching"
	StatePersisting RunState = "persisting"
	StateCompleted  RunState = "completed"
	StateAborted    RunState = "aborted"
)

// Result summarizes one run. Counters satisfy the accounting invariant
// Fetched == Persisted + SkippedDuplicate + Failed.
type Result struct {
	RunID            string    `json:"run_id"`
	Term             string    `json:"term"`
	State            RunState  `json:"state"`
	Fetched          int       `json:"fetched"`
	SkippedDuplicate int       `json:"skipped_duplicate"`
	Persisted        int       `json:"persisted"`
	Failed           int       `json:"failed"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}
