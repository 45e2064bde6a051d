package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/logger"
	"github.com/wastetrack/wastetrack/internal/metrics"
	"github.com/wastetrack/wastetrack/internal/model"
)

// AuditEvent is what callers hand to the recorder. The recorder assigns the
// id and the server timestamp.
type AuditEvent struct {
	Action             model.AuditAction
	ActorAccountID     string
	InitiatorAccountID string
	Status             model.AuditStatus
	Method             model.AuthMethod
	Meta               RequestMeta
	Metadata           map[string]any
}

// AuditRecorder is the single entry point for writing audit records.
//
// Record queues a record for background persistence and returns at once, so
// a slow or failing store never delays a response. A record that cannot be
// queued or persisted is written to the fallback log instead of being lost.
// LogEvent persists synchronously and reports failures to the caller.
type AuditRecorder struct {
	store        AuditStore
	log          *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	writeTimeout time.Duration

	queue   chan *model.AuditRecord
	workers sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewAuditRecorder creates a recorder and starts its workers
func NewAuditRecorder(store AuditStore, cfg config.AuditConfig, log *logger.Logger, m *metrics.Metrics) *AuditRecorder {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	r := &AuditRecorder{
		store:        store,
		log:          log.WithComponent("audit_recorder"),
		metrics:      m,
		now:          time.Now,
		writeTimeout: timeout,
		queue:        make(chan *model.AuditRecord, queueSize),
		entropy:      ulid.Monotonic(rand.Reader, 0),
	}

	for i := 0; i < workers; i++ {
		r.workers.Add(1)
		go r.run()
	}
	return r
}

// LogEvent validates, stamps and persists a record before returning it.
// Invalid events are rejected with a validation error and never stored.
func (r *AuditRecorder) LogEvent(ctx context.Context, ev AuditEvent) (*model.AuditRecord, error) {
	rec, err := r.build(ev)
	if err != nil {
		r.metrics.AuditWrite("rejected")
		return nil, apperr.Validation("audit", err.Error()).Wrap(err)
	}

	if err := r.store.Insert(ctx, rec); err != nil {
		r.metrics.AuditWrite("fallback")
		r.log.AuditFallback(rec, err)
		return nil, apperr.Internal(fmt.Errorf("failed to persist audit record: %w", err))
	}

	r.metrics.AuditWrite("persisted")
	return rec, nil
}

// Record queues an event for asynchronous persistence. It never blocks and
// never fails; problems surface in the log.
func (r *AuditRecorder) Record(ev AuditEvent) {
	rec, err := r.build(ev)
	if err != nil {
		r.metrics.AuditWrite("rejected")
		r.log.Error().Err(err).Str("action", string(ev.Action)).Msg("audit event rejected")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.metrics.AuditWrite("fallback")
		r.log.AuditFallback(rec, errors.New("recorder closed"))
		return
	}

	r.pending.Add(1)
	select {
	case r.queue <- rec:
	default:
		r.pending.Done()
		r.metrics.AuditWrite("fallback")
		r.log.AuditFallback(rec, errors.New("audit queue full"))
	}
}

// LogFailedAttempt records a failed action from an error path. The cause is
// kept in the metadata. Nothing is returned: audit trouble must not change
// the outcome of the request being audited.
func (r *AuditRecorder) LogFailedAttempt(action model.AuditAction, cause error, ev AuditEvent) {
	ev.Action = action
	ev.Status = model.AuditStatusFailed
	if cause != nil {
		md := make(map[string]any, len(ev.Metadata)+1)
		for k, v := range ev.Metadata {
			md[k] = v
		}
		if e := apperr.From(cause); e.Kind != apperr.KindInternal {
			md["error"] = e.Code
		} else {
			md["error"] = apperr.ErrInternal.Code
		}
		ev.Metadata = md
	}
	r.Record(ev)
}

// Trail returns stored records for the administrative audit view
func (r *AuditRecorder) Trail(ctx context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error) {
	records, err := r.store.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return records, nil
}

// Flush waits until every queued record has been persisted or logged
func (r *AuditRecorder) Flush() {
	r.pending.Wait()
}

// Close stops accepting records, drains the queue and stops the workers.
// Records that arrive afterwards go straight to the fallback log.
func (r *AuditRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit queue not drained: %w", ctx.Err())
	}
}

func (r *AuditRecorder) run() {
	defer r.workers.Done()
	for rec := range r.queue {
		r.persist(rec)
		r.pending.Done()
	}
}

func (r *AuditRecorder) persist(rec *model.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.store.Insert(ctx, rec); err != nil {
		r.metrics.AuditWrite("fallback")
		r.log.AuditFallback(rec, err)
		return
	}
	r.metrics.AuditWrite("persisted")
}

func (r *AuditRecorder) build(ev AuditEvent) (*model.AuditRecord, error) {
	now := r.now().UTC()

	rec := &model.AuditRecord{
		ID:              r.newID(now),
		Action:          ev.Action,
		Status:          ev.Status,
		IP:              ev.Meta.IP,
		Device:          ev.Meta.UserAgent,
		Method:          ev.Method,
		Metadata:        ev.Metadata,
		ServerTimestamp: now,
	}
	if rec.Status == "" {
		rec.Status = model.AuditStatusSuccess
	}
	if ev.ActorAccountID != "" {
		actor := ev.ActorAccountID
		rec.ActorAccountID = &actor
	}
	if ev.InitiatorAccountID != "" {
		initiator := ev.InitiatorAccountID
		rec.InitiatorAccountID = &initiator
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *AuditRecorder) newID(t time.Time) string {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), r.entropy).String()
}
