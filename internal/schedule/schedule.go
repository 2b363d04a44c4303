// Package schedule rings calls at a later time.
package schedule

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/keshucs12345/callsim/internal/scenario"
)

var (
	ErrNotFound     = errors.New("scheduled call not found")
	ErrInvalidDelay = errors.New("invalid delay")
)

// StartFunc starts a call for a scenario when its time comes.
type StartFunc func(sc scenario.Scenario) error

// Call is a pending scheduled call.
type Call struct {
	ID        string            `json:"id"`
	Scenario  scenario.Scenario `json:"scenario"`
	CreatedAt time.Time         `json:"created_at"`
	FireAt    time.Time         `json:"fire_at"`
}

// Remaining returns the time left before the call rings, never negative.
func (c Call) Remaining(now time.Time) time.Duration {
	return max(c.FireAt.Sub(now), 0)
}

type entry struct {
	call    Call
	entryID cron.EntryID
}

// Registry holds scheduled calls and starts each one once at its fire time.
// A call that has rung, or has been cancelled, is forgotten.
type Registry struct {
	cron   *cron.Cron
	start  StartFunc
	logger *slog.Logger

	mu      sync.Mutex
	calls   map[string]*entry
	stopped bool
}

// NewRegistry returns a running Registry. Call Stop to release it.
func NewRegistry(start StartFunc, logger *slog.Logger) *Registry {
	r := &Registry{
		cron:   cron.New(),
		start:  start,
		logger: logger.With("subsystem", "schedule"),
		calls:  make(map[string]*entry),
	}
	r.cron.Start()
	return r
}

// Schedule rings sc after delay.
func (r *Registry) Schedule(sc scenario.Scenario, delay time.Duration) (Call, error) {
	if delay < 0 {
		return Call{}, fmt.Errorf("%w: %s", ErrInvalidDelay, delay)
	}
	if err := sc.Validate(); err != nil {
		return Call{}, err
	}

	now := time.Now()
	c := Call{
		ID:        uuid.NewString(),
		Scenario:  sc.Normalized(),
		CreatedAt: now,
		FireAt:    now.Add(delay),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return Call{}, errors.New("schedule: registry stopped")
	}
	id := c.ID
	r.calls[id] = &entry{
		call:    c,
		entryID: r.cron.Schedule(&once{at: c.FireAt}, cron.FuncJob(func() { r.fire(id) })),
	}
	r.logger.Info("call scheduled", "id", id, "persona", sc.Persona, "fire_at", c.FireAt)
	return c, nil
}

func (r *Registry) fire(id string) {
	r.mu.Lock()
	e, ok := r.calls[id]
	if ok {
		delete(r.calls, id)
		r.cron.Remove(e.entryID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if err := r.start(e.call.Scenario); err != nil {
		r.logger.Warn("scheduled call could not start", "id", id, "error", err)
		return
	}
	r.logger.Info("scheduled call started", "id", id)
}

// Cancel removes a pending call.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.calls[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.cron.Remove(e.entryID)
	delete(r.calls, id)
	r.logger.Info("scheduled call cancelled", "id", id)
	return nil
}

// CancelAll removes every pending call and returns how many there were.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.calls)
	for id, e := range r.calls {
		r.cron.Remove(e.entryID)
		delete(r.calls, id)
	}
	if n > 0 {
		r.logger.Info("scheduled calls cancelled", "count", n)
	}
	return n
}

// List returns the pending calls, soonest first.
func (r *Registry) List() []Call {
	r.mu.Lock()
	out := make([]Call, 0, len(r.calls))
	for _, e := range r.calls {
		out = append(out, e.call)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Call) int {
		return cmp.Or(a.FireAt.Compare(b.FireAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Get returns a pending call.
func (r *Registry) Get(id string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.calls[id]
	if !ok {
		return Call{}, false
	}
	return e.call, true
}

// PendingCount returns the number of pending calls.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Stop cancels every pending call and waits for a call being started to
// return, or for ctx to be done.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.CancelAll()

	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// once is a cron.Schedule that fires a single time. The first Next returns
// the fire time, even one already past, and every later Next returns the
// zero time so cron never runs the entry again.
type once struct {
	at   time.Time
	done atomic.Bool
}

func (o *once) Next(time.Time) time.Time {
	if o.done.Swap(true) {
		return time.Time{}
	}
	return o.at
}

// FormatRemaining renders a countdown: "Now", "45s", "2m 5s" or "1h 3m".
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "Now"
	}
	secs := int(d / time.Second)
	mins := secs / 60
	hours := mins / 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins%60)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs%60)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// Preset is a ready-made delay.
type Preset struct {
	Name  string        `json:"name"`
	Label string        `json:"label"`
	Delay time.Duration `json:"delay"`
}

// Presets lists the ready-made delays, shortest first.
var Presets = []Preset{
	{Name: "immediate", Label: "Emergency", Delay: 5 * time.Second},
	{Name: "1m", Label: "1 minute", Delay: time.Minute},
	{Name: "5m", Label: "5 minutes", Delay: 5 * time.Minute},
	{Name: "10m", Label: "10 minutes", Delay: 10 * time.Minute},
	{Name: "30m", Label: "30 minutes", Delay: 30 * time.Minute},
}

// PresetByName returns the preset called name.
func PresetByName(name string) (Preset, bool) {
	i := slices.IndexFunc(Presets, func(p Preset) bool { return p.Name == name })
	if i < 0 {
		return Preset{}, false
	}
	return Presets[i], true
}
