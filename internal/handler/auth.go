package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/middleware"
	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/respond"
	"github.com/wastetrack/wastetrack/internal/service"
)

type tokenResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	ExpiresIn    int64          `json:"expiresIn"`
	Account      *model.Account `json:"account,omitempty"`
}

func newTokenResponse(pair *model.TokenPair, acct *model.Account) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		Account:      acct,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a citizen account and signs it in
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) error {
	var req registerRequest
	if err := readJSON(r, &req, false); err != nil {
		return err
	}

	audit := middleware.AuditFrom(r.Context())
	audit.Set("username", req.Username)

	acct, tokens, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, middleware.Meta(r))
	if err != nil {
		return err
	}

	audit.SetActor(acct.ID)
	respond.JSON(w, http.StatusCreated, newTokenResponse(tokens, acct))
	return nil
}

// Login issues a token pair for the account authenticated by the Basic gate
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) error {
	acct := middleware.AccountFrom(r.Context())
	if acct == nil {
		return apperr.ErrInvalidCredentials
	}

	tokens, err := h.issuer.Issue(r.Context(), acct, middleware.Meta(r))
	if err != nil {
		return err
	}

	respond.JSON(w, http.StatusOK, newTokenResponse(tokens, acct))
	return nil
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates a refresh token into a new pair
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) error {
	var req refreshTokenRequest
	if err := readJSON(r, &req, true); err != nil {
		return err
	}

	tokens, err := h.issuer.Refresh(r.Context(), req.RefreshToken, middleware.Meta(r))
	if err != nil {
		return err
	}

	respond.JSON(w, http.StatusOK, newTokenResponse(tokens, nil))
	return nil
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the presented refresh token, or every session of the
// account when none is presented
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) error {
	acct := middleware.AccountFrom(r.Context())

	var req logoutRequest
	if err := readJSON(r, &req, true); err != nil {
		return err
	}

	audit := middleware.AuditFrom(r.Context())
	if req.RefreshToken == "" {
		n, err := h.issuer.RevokeAll(r.Context(), acct.ID)
		if err != nil {
			return err
		}
		audit.Set("scope", "all")
		audit.Set("revoked", n)
	} else {
		if err := h.issuer.Revoke(r.Context(), acct.ID, req.RefreshToken); err != nil {
			return err
		}
		audit.Set("scope", "session")
	}

	respond.JSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	return nil
}

// LogoutAll revokes every refresh token of the account
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) error {
	acct := middleware.AccountFrom(r.Context())

	n, err := h.issuer.RevokeAll(r.Context(), acct.ID)
	if err != nil {
		return err
	}

	audit := middleware.AuditFrom(r.Context())
	audit.Set("scope", "all")
	audit.Set("revoked", n)

	respond.JSON(w, http.StatusOK, map[string]any{"message": "Logged out everywhere", "revoked": n})
	return nil
}

// Me returns the authenticated account
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) error {
	respond.JSON(w, http.StatusOK, middleware.AccountFrom(r.Context()))
	return nil
}

type credentialsRequest struct {
	CurrentPassword string  `json:"currentPassword"`
	Email           *string `json:"email"`
	NewPassword     *string `json:"newPassword"`
}

// UpdateCredentials changes email and/or password. All earlier sessions
// end and a fresh pair is returned.
func (h *Handler) UpdateCredentials(w http.ResponseWriter, r *http.Request) error {
	acct := middleware.AccountFrom(r.Context())

	var req credentialsRequest
	if err := readJSON(r, &req, false); err != nil {
		return err
	}

	res, err := h.accounts.UpdateCredentials(r.Context(), acct.ID, service.CredentialsInput{
		CurrentPassword: req.CurrentPassword,
		NewEmail:        req.Email,
		NewPassword:     req.NewPassword,
	}, middleware.Meta(r))
	if err != nil {
		return err
	}

	audit := middleware.AuditFrom(r.Context())
	audit.Set("emailChanged", res.EmailChanged)
	audit.Set("passwordChanged", res.PasswordChanged)
	if res.PasswordChanged && !res.EmailChanged {
		audit.SetAction(model.AuditActionPasswordChange)
	}

	respond.JSON(w, http.StatusOK, newTokenResponse(res.Tokens, res.Account))
	return nil
}

// GoogleOAuth redirects to the Google consent page
func (h *Handler) GoogleOAuth(w http.ResponseWriter, r *http.Request) error {
	if h.oauth == nil {
		return apperr.ErrNotFound.WithMessage("Google sign in is not enabled")
	}

	target, err := h.oauth.Begin(r.Context())
	if err != nil {
		return err
	}

	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

// GoogleCallback completes Google sign in and redirects to the web app. The
// tokens travel in the URL fragment so they never reach a server log.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	failure := h.cfg.URLs.Web(h.cfg.URLs.OAuthFailure)
	if h.oauth == nil {
		http.Redirect(w, r, failure+"?error="+url.QueryEscape(apperr.ErrProviderUnavailable.Code), http.StatusFound)
		return
	}

	q := r.URL.Query()
	res, err := h.oauth.Complete(r.Context(), q.Get("state"), q.Get("code"), q.Get("error"), middleware.Meta(r))
	if err != nil {
		e := apperr.From(err)
		if e.Kind == apperr.KindInternal {
			h.log.Error().Err(err).Msg("google sign in failed")
		}
		http.Redirect(w, r, failure+"?error="+url.QueryEscape(e.Code), http.StatusFound)
		return
	}

	fragment := url.Values{}
	fragment.Set("accessToken", res.Tokens.AccessToken)
	fragment.Set("refreshToken", res.Tokens.RefreshToken)
	fragment.Set("expiresIn", strconv.FormatInt(res.Tokens.ExpiresIn, 10))
	if res.Created {
		fragment.Set("created", "true")
	}

	http.Redirect(w, r, h.cfg.URLs.Web(h.cfg.URLs.OAuthSuccess)+"#"+fragment.Encode(), http.StatusFound)
}
