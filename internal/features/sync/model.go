package sync

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sync kinds.
const (
	TypeFull        = "Full"
	TypeIncremental = "Incremental"
	TypeManual      = "Manual"
)

// Run statuses. A run starts Running and finishes in exactly one of the
// other three.
const (
	StatusRunning = "Running"
	StatusSuccess = "Success"
	StatusPartial = "Partial"
	StatusFailed  = "Failed"
)

// ErrorEntry is one per-record failure collected during a run.
type ErrorEntry struct {
	Entity     string `json:"entity" bson:"entity"`
	ExternalID int64  `json:"external_id,omitempty" bson:"external_id,omitempty"`
	Error      string `json:"error" bson:"error"`
}

// Result is the outcome of one entity sync call. The orchestrator
// aggregates results; entity syncs never share mutable state.
type Result struct {
	Pulled  int
	Created int
	Updated int
	Errors  []ErrorEntry
}

// Stats is the run-scoped accumulator reported to callers and persisted
// on the run log.
type Stats struct {
	Pulled  int `json:"records_pulled"`
	Created int `json:"records_created"`
	Updated int `json:"records_updated"`
	Errors  int `json:"errors"`
}

func (s *Stats) add(r Result) {
	s.Pulled += r.Pulled
	s.Created += r.Created
	s.Updated += r.Updated
	s.Errors += len(r.Errors)
}

// RunLog is the persisted record of one orchestration run.
type RunLog struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SyncType        string             `json:"sync_type" bson:"sync_type"`
	EntityScope     string             `json:"entity_scope" bson:"entity_scope"`
	Status          string             `json:"status" bson:"status"`
	RecordsPulled   int                `json:"records_pulled" bson:"records_pulled"`
	RecordsCreated  int                `json:"records_created" bson:"records_created"`
	RecordsUpdated  int                `json:"records_updated" bson:"records_updated"`
	Errors          int                `json:"errors" bson:"errors"`
	StartedAt       time.Time          `json:"started_at" bson:"started_at"`
	CompletedAt     time.Time          `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	DurationSeconds float64            `json:"sync_duration_seconds" bson:"sync_duration_seconds"`
	ErrorDetail     string             `json:"error_detail,omitempty" bson:"error_detail,omitempty"`
}

// LinkResult is the outcome of a link repair pass.
type LinkResult struct {
	Updated  int `json:"updated"`
	NotFound int `json:"not_found"`
}
