package model

import "time"

// Remix job status values.
//
// The lifecycle is strictly monotonic:
//
//	pending → processing → completed
//	                    ↘ error
//
// A job never transitions back to processing once terminal, and its logs
// are immutable after the terminal status is written.
const (
	RemixStatusPending    = "pending"
	RemixStatusProcessing = "processing"
	RemixStatusCompleted  = "completed"
	RemixStatusError      = "error"
)

// RemixJob is one remix invocation, persisted as a history record.
//
// The record is created the moment validation passes (status processing) and
// BEFORE any GitHub call is made — so the quota window only ever counts jobs
// that actually started. The GitHub tokens used for the copy are deliberately
// absent from this struct: they live only in the in-flight request and are
// never persisted.
//
// Logs is the full ordered transcript of the operation. The history viewer
// replays it verbatim, so once Status is terminal the slice is final.
type RemixJob struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	SourceRepo   string     `json:"sourceRepo"` // normalized "owner/name"
	TargetRepo   string     `json:"targetRepo"` // normalized "owner/name"
	Status       string     `json:"status"`
	Logs         []string   `json:"logs"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// IsTerminal reports whether the job reached a final state.
func (j *RemixJob) IsTerminal() bool {
	return j.Status == RemixStatusCompleted || j.Status == RemixStatusError
}

// TreeEntry is one file in a repository tree listing.
//
// Only blob entries flow through the remix pipeline — directories are
// implied by the paths and submodules are excluded at listing time. Mode is
// carried verbatim from the source tree so executable bits and symlinks
// survive the copy. SHA is the content hash: the source blob's hash when
// listing, and the freshly created target blob's hash when building the new
// tree (the two may differ even for identical content, since each repository
// has its own object database).
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"` // always "blob" in this pipeline
	SHA  string `json:"sha"`
}

// RemixEvent is one frame of the progress stream sent to the client.
//
// Exactly one of the three fields is set per event. A stream consists of zero
// or more Log events followed by exactly one terminal event: either
// {Done: true} or {Error: "..."} — never both, and always last.
type RemixEvent struct {
	Log   string `json:"log,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// Terminal reports whether this event closes the stream.
func (e RemixEvent) Terminal() bool {
	return e.Done || e.Error != ""
}
