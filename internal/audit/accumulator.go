package audit

import (
	"context"
	"sync"
	"time"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// eventKey collapses repeated accesses of the same part within a request.
type eventKey struct {
	operation Operation
	part      string
}

// bucket collects the events observed for one profile within a request.
type bucket struct {
	profileID id.ProfileID
	// userID is the owning user when some recorded model knew it; the
	// flush resolves the rest in one batched lookup.
	userID id.UserID
	// events maps each (operation, part) to the first timestamp observed.
	events map[eventKey]time.Time
}

// Accumulator is the request-scoped event collector. It travels in the
// request context rather than any thread-scoped storage, so behavior stays
// deterministic no matter how the handler is scheduled.
type Accumulator struct {
	mu      sync.Mutex
	buckets map[id.ProfileID]*bucket
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{buckets: make(map[id.ProfileID]*bucket)}
}

type accumulatorKey struct{}

// WithAccumulator returns a context carrying the accumulator.
func WithAccumulator(ctx context.Context, acc *Accumulator) context.Context {
	return context.WithValue(ctx, accumulatorKey{}, acc)
}

// FromContext retrieves the request's accumulator, or nil when auditing is
// not active for this request.
func FromContext(ctx context.Context) *Accumulator {
	acc, _ := ctx.Value(accumulatorKey{}).(*Accumulator)
	return acc
}

// Record notes that an operation touched the given model. It is a no-op
// when no accumulator is attached to the context or the model was never
// persisted. Only the first timestamp per (profile, operation, part) within
// the request is kept.
func Record(ctx context.Context, op Operation, model Loggable) {
	acc := FromContext(ctx)
	if acc == nil || model == nil || !model.AuditPersisted() {
		return
	}
	acc.record(op, model, time.Now())
}

func (a *Accumulator) record(op Operation, model Loggable, at time.Time) {
	profileID := model.AuditOwningProfile()
	if profileID.IsNil() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[profileID]
	if !ok {
		b = &bucket{
			profileID: profileID,
			events:    make(map[eventKey]time.Time),
		}
		a.buckets[profileID] = b
	}
	if userID := model.AuditOwningUser(); !userID.IsNil() {
		b.userID = userID
	}

	key := eventKey{operation: op, part: partName(model.AuditModelName())}
	if _, seen := b.events[key]; !seen {
		b.events[key] = at
	}
}

// Empty reports whether anything was recorded.
func (a *Accumulator) Empty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets) == 0
}

// snapshot returns the accumulated buckets and clears the accumulator, so
// nothing survives past the flush.
func (a *Accumulator) snapshot() []*bucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*bucket, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, b)
	}
	a.buckets = make(map[id.ProfileID]*bucket)
	return out
}
