package job

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nadzzz/narrator/internal/job"

type record struct {
	state        State
	createdAt    time.Time
	lastAccessAt time.Time
	seq          uint64 // creation order, breaks CreatedAt ties
}

// Store is a mutex-guarded arena of job records keyed by job id.
// All methods are safe for concurrent use; none of them block on I/O.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*record
	nextSeq uint64

	ttl     time.Duration
	maxJobs int
	clock   func() time.Time
	newID   func() string

	evicted metric.Int64Counter
}

// SweepResult reports what a single eviction pass removed.
type SweepResult struct {
	Expired int
	Evicted int
}

// NewStore creates an empty store. Records idle for longer than ttl are
// expired by Sweep; when more than maxJobs remain, the oldest are evicted.
func NewStore(ttl time.Duration, maxJobs int) *Store {
	s := &Store{
		jobs:    make(map[string]*record),
		ttl:     ttl,
		maxJobs: maxJobs,
		clock:   time.Now,
		newID:   uuid.NewString,
	}

	meter := otel.Meter(meterName)
	s.evicted, _ = meter.Int64Counter("narrator.jobs.evicted",
		metric.WithDescription("Jobs removed by the background sweep"))
	_, _ = meter.Int64ObservableGauge("narrator.jobs.stored",
		metric.WithDescription("Jobs currently held in memory"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(s.Len()))
			return nil
		}))

	return s
}

// Create inserts a fresh Processing job and returns its id.
func (s *Store) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for _, taken := s.jobs[id]; taken; _, taken = s.jobs[id] {
		id = s.newID()
	}

	now := s.clock()
	s.nextSeq++
	s.jobs[id] = &record{
		state:        Processing{},
		createdAt:    now,
		lastAccessAt: now,
		seq:          s.nextSeq,
	}
	return id
}

// Patch sets the outcome of an existing job and refreshes its access time.
// It reports false, changing nothing, when the id is unknown, which is what a
// late or duplicate callback for a consumed or evicted job looks like.
func (s *Store) Patch(id string, outcome Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return false
	}
	rec.state = outcome
	rec.lastAccessAt = s.clock()
	return true
}

// Get returns a snapshot of the job. A successful read counts as an access
// for TTL purposes; it never removes the record.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	rec.lastAccessAt = s.clock()
	return rec.snapshot(id), true
}

// Consume deletes a job. Only the first caller for a given id gets true.
func (s *Store) Consume(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Sweep expires records idle for longer than the TTL, then evicts the
// oldest-created records until at most maxJobs remain.
func (s *Store) Sweep() SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SweepResult
	now := s.clock()
	for id, rec := range s.jobs {
		if now.Sub(rec.lastAccessAt) > s.ttl {
			delete(s.jobs, id)
			res.Expired++
		}
	}

	if excess := len(s.jobs) - s.maxJobs; excess > 0 {
		type aged struct {
			id  string
			rec *record
		}
		all := make([]aged, 0, len(s.jobs))
		for id, rec := range s.jobs {
			all = append(all, aged{id, rec})
		}
		sort.Slice(all, func(i, j int) bool {
			a, b := all[i].rec, all[j].rec
			if !a.createdAt.Equal(b.createdAt) {
				return a.createdAt.Before(b.createdAt)
			}
			return a.seq < b.seq
		})
		for _, victim := range all[:excess] {
			delete(s.jobs, victim.id)
		}
		res.Evicted = excess
	}

	return res
}

// Run sweeps the store every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := s.Sweep()
			if res.Expired == 0 && res.Evicted == 0 {
				continue
			}
			if s.evicted != nil {
				s.evicted.Add(ctx, int64(res.Expired), metric.WithAttributes(attribute.String("reason", "ttl")))
				s.evicted.Add(ctx, int64(res.Evicted), metric.WithAttributes(attribute.String("reason", "capacity")))
			}
			slog.Info("job sweep", "expired", res.Expired, "evicted", res.Evicted, "remaining", s.Len())
		}
	}
}

func (r *record) snapshot(id string) Job {
	return Job{
		ID:           id,
		State:        r.state,
		CreatedAt:    r.createdAt,
		LastAccessAt: r.lastAccessAt,
	}
}
