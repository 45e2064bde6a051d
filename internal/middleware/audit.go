package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/respond"
	"github.com/wastetrack/wastetrack/internal/service"
)

// AppHandler is a handler that reports failure by returning an error.
// The wrapper turns the error into the response.
type AppHandler func(w http.ResponseWriter, r *http.Request) error

// AuditScope collects what the audit record of a wrapped request should
// say. Handlers refine it while they run; the wrapper writes the record
// after the handler returns, whatever the outcome.
type AuditScope struct {
	mu        sync.Mutex
	action    model.AuditAction
	actor     string
	initiator string
	metadata  map[string]any
}

// AuditFrom returns the scope of the current request. The methods of a
// nil scope do nothing, so handlers may call them unconditionally.
func AuditFrom(ctx context.Context) *AuditScope {
	s, _ := ctx.Value(auditKey).(*AuditScope)
	return s
}

// SetAction replaces the action recorded for the request
func (s *AuditScope) SetAction(a model.AuditAction) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.action = a
	s.mu.Unlock()
}

// SetActor sets the account the action was performed on or by
func (s *AuditScope) SetActor(id string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.actor = id
	s.mu.Unlock()
}

// SetInitiator sets the account that performed an action on behalf of
// another account
func (s *AuditScope) SetInitiator(id string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.initiator = id
	s.mu.Unlock()
}

// Set adds a metadata entry
func (s *AuditScope) Set(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.metadata == nil {
		s.metadata = make(map[string]any)
	}
	s.metadata[key] = value
	s.mu.Unlock()
}

func (s *AuditScope) event(meta service.RequestMeta) service.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return service.AuditEvent{
		Action:             s.action,
		ActorAccountID:     s.actor,
		InitiatorAccountID: s.initiator,
		Status:             model.AuditStatusSuccess,
		Meta:               meta,
		Metadata:           s.metadata,
	}
}

// Audited runs h and always records the outcome as action. The actor
// defaults to the authenticated account, which is also the initiator of
// administrative actions. The status comes from the response: an error,
// a panic or a status of 400 or above is recorded as failed.
func (m *Middleware) Audited(action model.AuditAction, h AppHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := &AuditScope{action: action}
		if acct := AccountFrom(r.Context()); acct != nil {
			scope.actor = acct.ID
			if action.Administrative() {
				scope.initiator = acct.ID
			}
		}
		ctx := context.WithValue(r.Context(), auditKey, scope)
		r = r.WithContext(ctx)
		wrapped := newResponseWriter(w)

		defer func() {
			if p := recover(); p != nil {
				ev := scope.event(Meta(r))
				m.audit.LogFailedAttempt(ev.Action, apperr.ErrInternal, ev)
				// Recover shapes the response
				panic(p)
			}
		}()

		err := h(wrapped, r)
		if err != nil {
			m.logInternal(r, err)
			respond.Error(wrapped, err)
		}

		ev := scope.event(Meta(r))
		switch {
		case err != nil:
			m.audit.LogFailedAttempt(ev.Action, err, ev)
		case wrapped.statusCode >= http.StatusBadRequest:
			ev.Metadata = withStatus(ev.Metadata, wrapped.statusCode)
			m.audit.LogFailedAttempt(ev.Action, nil, ev)
		default:
			m.audit.Record(ev)
		}
	})
}

func withStatus(md map[string]any, status int) map[string]any {
	out := make(map[string]any, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	out["status"] = status
	return out
}

// Handle adapts an AppHandler that needs no audit record of its own
func (m *Middleware) Handle(h AppHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			m.logInternal(r, err)
			respond.Error(w, err)
		}
	})
}
