package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"
	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/auth"
	"github.com/sakif/pollar/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler manages sign-in (OAuth and email/password), sessions and the
// account endpoints.
//
// HANDLER RESPONSIBILITIES:
//   - HandleProviderLogin    → redirect the browser to the provider
//   - HandleProviderCallback → check state, exchange the code, issue the session cookie
//   - HandleSignup / HandleLogin → password accounts
//   - HandleLogout           → clear the session cookie
//   - HandleValidate         → tell the frontend whether its session is alive
//   - HandleMe / HandleUpdateMe → the signed-in account
//
// DEPENDENCY CHAIN:
//   - auth      *service.AuthService → users, tokens, passwords
//   - providers map[name]IdentityProvider → only the configured ones
type AuthHandler struct {
	auth         *service.AuthService
	providers    map[string]auth.IdentityProvider
	sessionTTL   time.Duration
	cookieSecure bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. Only the providers in the map get
// working login routes.
func NewAuthHandler(
	authService *service.AuthService,
	providers map[string]auth.IdentityProvider,
	sessionTTL time.Duration,
	cookieSecure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:         authService,
		providers:    providers,
		sessionTTL:   sessionTTL,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

func (h *AuthHandler) provider(w http.ResponseWriter, r *http.Request) (auth.IdentityProvider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers[name]
	if !ok {
		writeError(w, apperror.NotFound("identity provider", name))
	}
	return p, ok
}

// HandleProviderLogin redirects the user to the provider's consent page.
//
// HTTP: GET /auth/{provider}/login
//
// CSRF PROTECTION VIA STATE:
// We generate a random state string and store it in a short-lived cookie.
// When the provider calls back, HandleProviderCallback verifies the state
// matches. This proves the callback was initiated by this server.
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, p.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleProviderCallback completes the OAuth flow.
//
// HTTP: GET /auth/{provider}/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the provider's identity
//  3. Upsert the user by email and issue a session
//  4. Set the session cookie and redirect to the app
func (h *AuthHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(w, r)
	if !ok {
		return
	}

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch", slog.String("provider", p.Name()))
		writeError(w, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("provider", p.Name()),
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "Missing OAuth code"))
		return
	}

	// --- Step 2: Exchange code for identity ---
	identity, err := p.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: exchange failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		writeError(w, apperror.Unauthorized("Authentication failed"))
		return
	}

	// --- Step 3: Upsert user and issue session ---
	result, err := h.auth.SignInWithProvider(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}

	// --- Step 4: Cookie and redirect ---
	h.setSessionCookie(w, result)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleSignup creates a password account and signs it in.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"name", "email", "password"}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Signup(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result)
	writeOK(w, http.StatusCreated, "Account created successfully", result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result)
	writeOK(w, http.StatusOK, "Logged in", result)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so "logout" only deletes the client-side
// cookie. The token stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeOK(w, http.StatusOK, "Logged out", nil)
}

type validateResponse struct {
	Success bool       `json:"success"`
	Valid   bool       `json:"valid"`
	UserID  string     `json:"userId,omitempty"`
	Expires *time.Time `json:"expires,omitempty"`
}

// HandleValidate reports whether the request carries a live session. It
// always answers 200; an invalid session is {"valid": false}.
//
// HTTP: GET /auth/validate
func (h *AuthHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.ValidateSession(auth.TokenFromRequest(r))
	if err != nil {
		writeJSON(w, http.StatusOK, validateResponse{Success: true})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Success: true,
		Valid:   true,
		UserID:  claims.UserID,
		Expires: &claims.ExpiresAt,
	})
}

// HandleMe returns the signed-in account with plan limits and linked
// providers.
//
// HTTP: GET /me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	account, err := h.auth.Account(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "", account)
}

// HandleUpdateMe changes the display name and/or avatar.
//
// HTTP: PATCH /me
// REQUEST BODY: {"name"?, "avatarUrl"?}
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var upd service.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), uid, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "Profile updated", user)
}

// setSessionCookie stores the JWT in an HttpOnly cookie.
// HttpOnly = JavaScript cannot read it (XSS protection).
// SameSite=Lax = sent on top-level navigations but not cross-site POSTs.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, result *service.AuthResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
