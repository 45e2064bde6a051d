package handler

import (
	"net/http"
	"strconv"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/middleware"
	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/respond"
)

// AdminBlockAccount blocks the account named in the path
func (h *Handler) AdminBlockAccount(w http.ResponseWriter, r *http.Request) error {
	admin := middleware.AccountFrom(r.Context())
	targetID := r.PathValue("id")
	if targetID == "" {
		return apperr.Validation("id", "Account id is required")
	}

	audit := middleware.AuditFrom(r.Context())
	audit.SetActor(targetID)
	audit.SetInitiator(admin.ID)

	acct, err := h.accounts.Block(r.Context(), admin.ID, targetID)
	if err != nil {
		return err
	}

	respond.JSON(w, http.StatusOK, acct)
	return nil
}

// AdminUnblockAccount unblocks the account named in the path
func (h *Handler) AdminUnblockAccount(w http.ResponseWriter, r *http.Request) error {
	admin := middleware.AccountFrom(r.Context())
	targetID := r.PathValue("id")
	if targetID == "" {
		return apperr.Validation("id", "Account id is required")
	}

	audit := middleware.AuditFrom(r.Context())
	audit.SetActor(targetID)
	audit.SetInitiator(admin.ID)

	acct, err := h.accounts.Unblock(r.Context(), admin.ID, targetID)
	if err != nil {
		return err
	}

	respond.JSON(w, http.StatusOK, acct)
	return nil
}

// AdminListAccounts returns a page of accounts
func (h *Handler) AdminListAccounts(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		return apperr.Validation("limit", "limit must be a number")
	}
	offset, err := optionalInt(q.Get("offset"))
	if err != nil {
		return apperr.Validation("offset", "offset must be a number")
	}

	accounts, err := h.accounts.List(r.Context(), limit, offset)
	if err != nil {
		return err
	}

	respond.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	return nil
}

// AdminAuditTrail returns audit records filtered by actor, initiator and
// action, newest first
func (h *Handler) AdminAuditTrail(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		return apperr.Validation("limit", "limit must be a number")
	}

	filter := model.AuditFilter{
		ActorAccountID:     q.Get("actor"),
		InitiatorAccountID: q.Get("initiator"),
		Limit:              limit,
	}
	if action := q.Get("action"); action != "" {
		filter.Action = model.AuditAction(action)
		if !filter.Action.Valid() {
			return apperr.Validation("action", "Unknown audit action")
		}
	}

	records, err := h.audit.Trail(r.Context(), filter)
	if err != nil {
		return err
	}

	respond.JSON(w, http.StatusOK, map[string]any{"records": records})
	return nil
}

// OperatorConsole sends an operator to the web console. The route guard
// has already checked the role.
func (h *Handler) OperatorConsole(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.cfg.URLs.Web(h.cfg.URLs.OperatorConsole), http.StatusFound)
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
