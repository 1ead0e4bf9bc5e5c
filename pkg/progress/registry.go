package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harun/doctrack/internal/observability"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultCancelMessage is the final message of a cancelled operation
const DefaultCancelMessage = "Operation cancelled"

type callbackEntry struct {
	id CallbackID
	fn UpdateCallback
}

// Registry tracks the progress of many concurrent operations.
//
// A single mutex guards the records and the callback list. Callbacks run on
// the caller's goroutine while that mutex is held, so a callback must not
// call back into the same Registry.
type Registry struct {
	logger        zerolog.Logger
	now           func() time.Time
	strictParents bool

	mu         sync.Mutex
	operations map[string]*Record
	callbacks  []callbackEntry
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger used for lifecycle and callback failure messages
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.With().Str("component", "progress").Logger()
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStrictParents makes Start fail when the named parent is not tracked
func WithStrictParents(strict bool) Option {
	return func(r *Registry) {
		r.strictParents = strict
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	observability.EnsureRegistered()

	r := &Registry{
		logger:     log.Logger.With().Str("component", "progress").Logger(),
		now:        time.Now,
		operations: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins tracking a new running operation.
//
// An unknown parent is recorded on the child without linking it, unless the
// registry was built WithStrictParents.
func (r *Registry) Start(name string, opts StartOptions) (Record, error) {
	if strings.TrimSpace(name) == "" {
		return Record{}, ErrInvalidName
	}
	if opts.Total < 0 {
		return Record{}, fmt.Errorf("%w: %q has total %d", ErrInvalidTotal, name, opts.Total)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.operations[name]; exists {
		return Record{}, fmt.Errorf("%w: %q", ErrDuplicateOperation, name)
	}

	parent, parentKnown := r.operations[opts.Parent]
	if opts.Parent != "" && !parentKnown && r.strictParents {
		return Record{}, fmt.Errorf("%w: %q (parent of %q)", ErrParentNotFound, opts.Parent, name)
	}

	started := r.now()
	metadata := make(map[string]any, len(opts.Metadata))
	for k, v := range opts.Metadata {
		metadata[k] = v
	}

	record := &Record{
		Name:      name,
		Status:    StatusRunning,
		Total:     opts.Total,
		Message:   opts.Message,
		StartTime: &started,
		Parent:    opts.Parent,
		Children:  []string{},
		Metadata:  metadata,
	}
	r.operations[name] = record

	if opts.Parent != "" && parentKnown {
		parent.Children = append(parent.Children, name)
	}

	r.logger.Debug().
		Str("operation", name).
		Int("total", opts.Total).
		Str("parent", opts.Parent).
		Msg("Started operation")

	observability.RecordOperationStart()
	observability.SetActiveOperations(r.countRunning())
	r.notify(name, record)

	return record.clone(), nil
}

// Update changes the progress of a running operation and refreshes its
// elapsed time and remaining-time estimate.
func (r *Registry) Update(name string, u Update) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.operations[name]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if record.IsComplete() {
		return Record{}, fmt.Errorf("%w: %q is %s", ErrAlreadyFinished, name, record.Status)
	}

	if u.Current != nil {
		record.Current = *u.Current
	} else if u.Increment != nil {
		record.Current += *u.Increment
	}
	if u.Message != nil {
		record.Message = *u.Message
	}
	for k, v := range u.Metadata {
		record.Metadata[k] = v
	}

	if record.StartTime != nil {
		record.Elapsed = r.now().Sub(*record.StartTime)
	}

	// The previous estimate survives updates that cannot produce a rate.
	if record.Total > 0 && record.Current > 0 && record.Elapsed > 0 {
		rate := float64(record.Current) / record.Elapsed.Seconds()
		remaining := secondsToDuration(float64(record.Total-record.Current) / rate)
		record.EstimatedRemaining = &remaining
	}

	r.logger.Debug().
		Str("operation", name).
		Int("current", record.Current).
		Int("total", record.Total).
		Msg("Updated operation")

	r.notify(name, record)

	return record.clone(), nil
}

// Complete moves an operation to a terminal status. A nil message keeps the
// current one.
func (r *Registry) Complete(name string, status Status, message *string) (Record, error) {
	if !status.IsTerminal() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.complete(name, status, message)
}

func (r *Registry) complete(name string, status Status, message *string) (Record, error) {
	record, ok := r.operations[name]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if record.IsComplete() {
		return Record{}, fmt.Errorf("%w: %q is %s", ErrAlreadyFinished, name, record.Status)
	}

	ended := r.now()
	record.Status = status
	record.EndTime = &ended
	if record.StartTime != nil {
		record.Elapsed = ended.Sub(*record.StartTime)
	}
	if message != nil {
		record.Message = *message
	}

	// Indeterminate operations read 100% once they succeed.
	if status == StatusCompleted && record.Total == 0 {
		record.Current = 1
		record.Total = 1
	}

	r.logger.Debug().
		Str("operation", name).
		Str("status", string(status)).
		Dur("elapsed", record.Elapsed).
		Msg("Completed operation")

	observability.RecordOperationFinish(string(status), record.Elapsed)
	observability.SetActiveOperations(r.countRunning())
	r.notify(name, record)

	return record.clone(), nil
}

// Cancel marks a running operation as cancelled. It returns false when the
// operation is unknown or already finished.
func (r *Registry) Cancel(name, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.operations[name]
	if !ok || record.IsComplete() {
		return false
	}

	if message == "" {
		message = DefaultCancelMessage
	}
	_, err := r.complete(name, StatusCancelled, &message)
	return err == nil
}

// Get returns a snapshot of the named operation
func (r *Registry) Get(name string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.operations[name]
	if !ok {
		return Record{}, false
	}
	return record.clone(), true
}

// All returns snapshots of every tracked operation
func (r *Registry) All() map[string]Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Record, len(r.operations))
	for name, record := range r.operations {
		out[name] = record.clone()
	}
	return out
}

// View calls fn with snapshots of every tracked operation while holding the
// registry lock, so no update is applied or dispatched until fn returns. fn
// must not call back into the registry.
func (r *Registry) View(fn func(records map[string]Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Record, len(r.operations))
	for name, record := range r.operations {
		out[name] = record.clone()
	}
	fn(out)
}

// Active returns snapshots of running operations
func (r *Registry) Active() map[string]Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Record)
	for name, record := range r.operations {
		if record.IsRunning() {
			out[name] = record.clone()
		}
	}
	return out
}

// Len returns the number of tracked operations
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.operations)
}

// AddCallback registers fn to observe every state change
func (r *Registry) AddCallback(fn UpdateCallback) CallbackID {
	id, err := gonanoid.New()
	if err != nil {
		id = fmt.Sprintf("cb-%d", r.now().UnixNano())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbacks = append(r.callbacks, callbackEntry{id: CallbackID(id), fn: fn})
	return CallbackID(id)
}

// RemoveCallback unregisters a callback. It returns false for unknown ids.
func (r *Registry) RemoveCallback(id CallbackID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.callbacks {
		if entry.id == id {
			r.callbacks = append(r.callbacks[:i], r.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// ClearCompleted drops every finished operation and unlinks it from its
// parent. Finished operations with a running descendant are kept so the
// descendant stays reachable in the tree. It returns the number of removed
// operations.
func (r *Registry) ClearCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var finished []string
	for name, record := range r.operations {
		if record.IsComplete() && !r.hasLiveDescendant(name, map[string]bool{}) {
			finished = append(finished, name)
		}
	}

	for _, name := range finished {
		record := r.operations[name]
		if parent, ok := r.operations[record.Parent]; ok && record.Parent != "" {
			parent.Children = removeName(parent.Children, name)
		}
		delete(r.operations, name)
	}

	r.logger.Debug().Int("removed", len(finished)).Msg("Cleared completed operations")
	return len(finished)
}

// hasLiveDescendant must be called with r.mu held
func (r *Registry) hasLiveDescendant(name string, seen map[string]bool) bool {
	seen[name] = true
	for _, child := range r.operations[name].Children {
		record, ok := r.operations[child]
		if !ok || seen[child] {
			continue
		}
		if !record.IsComplete() || r.hasLiveDescendant(child, seen) {
			return true
		}
	}
	return false
}

// notify must be called with r.mu held
func (r *Registry) notify(name string, record *Record) {
	for _, entry := range r.callbacks {
		r.invoke(entry, name, record.clone())
	}
}

func (r *Registry) invoke(entry callbackEntry, name string, snapshot Record) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.RecordCallbackPanic()
			r.logger.Error().
				Str("operation", name).
				Str("callback_id", string(entry.id)).
				Interface("panic", rec).
				Msg("Error in progress callback")
		}
	}()
	entry.fn(name, snapshot)
}

func (r *Registry) countRunning() int {
	n := 0
	for _, record := range r.operations {
		if record.IsRunning() {
			n++
		}
	}
	return n
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
