package progress

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a tracked operation
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status ends an operation's lifecycle
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Record is the progress state of one named operation.
//
// Records returned by a Registry are snapshots: changing them does not
// affect the registry.
type Record struct {
	Name               string
	Status             Status
	Current            int
	Total              int // 0 means indeterminate
	Message            string
	StartTime          *time.Time
	EndTime            *time.Time
	Elapsed            time.Duration
	EstimatedRemaining *time.Duration
	Parent             string
	Children           []string
	Metadata           map[string]any
}

// ProgressPercentage returns current/total as a percentage clamped to [0, 100].
// Indeterminate operations always report 0.
func (r Record) ProgressPercentage() float64 {
	if r.Total <= 0 {
		return 0
	}
	pct := float64(r.Current) / float64(r.Total) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// IsComplete reports whether the operation reached a terminal status
func (r Record) IsComplete() bool {
	return r.Status.IsTerminal()
}

// IsRunning reports whether the operation is running
func (r Record) IsRunning() bool {
	return r.Status == StatusRunning
}

func (r *Record) clone() Record {
	c := *r
	if r.StartTime != nil {
		t := *r.StartTime
		c.StartTime = &t
	}
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	if r.EstimatedRemaining != nil {
		d := *r.EstimatedRemaining
		c.EstimatedRemaining = &d
	}
	c.Children = append([]string{}, r.Children...)
	c.Metadata = make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		c.Metadata[k] = v
	}
	return c
}

// recordJSON is the serialized form consumed by displays and log sinks
type recordJSON struct {
	Name               string         `json:"name"`
	Status             Status         `json:"status"`
	Current            int            `json:"current"`
	Total              int            `json:"total"`
	ProgressPercentage float64        `json:"progress_percentage"`
	Message            string         `json:"message"`
	StartTime          *time.Time     `json:"start_time"`
	EndTime            *time.Time     `json:"end_time"`
	ElapsedTime        float64        `json:"elapsed_time"`
	EstimatedRemaining *float64       `json:"estimated_remaining"`
	Parent             *string        `json:"parent"`
	Children           []string       `json:"children"`
	Metadata           map[string]any `json:"metadata"`
	IsComplete         bool           `json:"is_complete"`
	IsRunning          bool           `json:"is_running"`
}

func (r Record) toJSON() recordJSON {
	out := recordJSON{
		Name:               r.Name,
		Status:             r.Status,
		Current:            r.Current,
		Total:              r.Total,
		ProgressPercentage: r.ProgressPercentage(),
		Message:            r.Message,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		ElapsedTime:        r.Elapsed.Seconds(),
		Children:           r.Children,
		Metadata:           r.Metadata,
		IsComplete:         r.IsComplete(),
		IsRunning:          r.IsRunning(),
	}
	if r.EstimatedRemaining != nil {
		secs := r.EstimatedRemaining.Seconds()
		out.EstimatedRemaining = &secs
	}
	if r.Parent != "" {
		parent := r.Parent
		out.Parent = &parent
	}
	if out.Children == nil {
		out.Children = []string{}
	}
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	return out
}

// MarshalJSON renders the record with its derived fields
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.toJSON())
}

// UnmarshalJSON restores a record from its serialized form. Derived fields are ignored.
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*r = Record{
		Name:      in.Name,
		Status:    in.Status,
		Current:   in.Current,
		Total:     in.Total,
		Message:   in.Message,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Elapsed:   secondsToDuration(in.ElapsedTime),
		Children:  in.Children,
		Metadata:  in.Metadata,
	}
	if in.EstimatedRemaining != nil {
		d := secondsToDuration(*in.EstimatedRemaining)
		r.EstimatedRemaining = &d
	}
	if in.Parent != nil {
		r.Parent = *in.Parent
	}
	return nil
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// StartOptions describes a new operation
type StartOptions struct {
	Total    int
	Message  string
	Parent   string
	Metadata map[string]any
}

// Update describes a progress change. Current takes precedence over Increment.
type Update struct {
	Current   *int
	Increment *int
	Message   *string
	Metadata  map[string]any
}

// Summary aggregates the state of every tracked operation
type Summary struct {
	TotalOperations           int     `json:"total_operations"`
	RunningOperations         int     `json:"running_operations"`
	CompletedOperations       int     `json:"completed_operations"`
	FailedOperations          int     `json:"failed_operations"`
	CancelledOperations       int     `json:"cancelled_operations"`
	OverallProgressPercentage float64 `json:"overall_progress_percentage"`
	TotalItems                int     `json:"total_items"`
	CompletedItems            int     `json:"completed_items"`
}

// UpdateCallback observes every state change of a registry
type UpdateCallback func(name string, record Record)

// CallbackID identifies a registered UpdateCallback
type CallbackID string
