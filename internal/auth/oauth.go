package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sakif/pollar/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/github"
)

// IdentityProvider is one external sign-in option.
//
// OAUTH2 AUTHORIZATION CODE FLOW:
//  1. AuthURL sends the browser to the provider with a random `state`.
//  2. The provider redirects back to our callback with `code` and `state`.
//  3. The callback checks `state` against the cookie (CSRF protection) and
//     calls Exchange, which trades the code for an access token and asks
//     the provider who the user is.
type IdentityProvider interface {
	Name() string
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (model.Identity, error)
}

// ProviderConfig holds the OAuth app credentials of one provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Enabled reports whether the provider has credentials configured.
func (c ProviderConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// NewProviders returns the configured providers keyed by name. Providers
// without credentials are left out, so their routes answer 404.
func NewProviders(gh, google ProviderConfig) map[string]IdentityProvider {
	providers := map[string]IdentityProvider{}
	if gh.Enabled() {
		p := NewGitHubProvider(gh)
		providers[p.Name()] = p
	}
	if google.Enabled() {
		p := NewGoogleProvider(google)
		providers[p.Name()] = p
	}
	return providers
}

// =========================================================================
// GITHUB
// =========================================================================

type githubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"` // empty when hidden in GitHub settings
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider signs users in with GitHub.
type GitHubProvider struct {
	config  *oauth2.Config
	apiBase string
}

// NewGitHubProvider creates a GitHubProvider from cfg.
func NewGitHubProvider(cfg ProviderConfig) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: "https://api.github.com",
	}
}

func (p *GitHubProvider) Name() string { return "github" }

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the code for a token and reads the GitHub profile. When
// the profile email is private, the primary verified address from
// /user/emails is used instead.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (model.Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return model.Identity{}, fmt.Errorf("auth: exchanging GitHub code: %w", err)
	}
	client := p.config.Client(ctx, token)

	var u githubUser
	if err := getJSON(ctx, client, p.apiBase+"/user", &u); err != nil {
		return model.Identity{}, err
	}

	email := u.Email
	if email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, p.apiBase+"/user/emails", &emails); err != nil {
			return model.Identity{}, err
		}
		email = pickGitHubEmail(emails)
	}
	if email == "" {
		return model.Identity{}, errors.New("auth: GitHub account has no verified email")
	}

	name := u.Name
	if name == "" {
		name = u.Login
	}
	return model.Identity{
		Provider:  p.Name(),
		Email:     strings.ToLower(email),
		Name:      name,
		AvatarURL: u.AvatarURL,
	}, nil
}

// pickGitHubEmail prefers the primary verified address, then any verified one.
func pickGitHubEmail(emails []githubEmail) string {
	fallback := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback
}

// =========================================================================
// GOOGLE
// =========================================================================

type googleUser struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleProvider signs users in with Google (OpenID Connect userinfo).
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider from cfg.
func NewGoogleProvider(cfg ProviderConfig) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (model.Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return model.Identity{}, fmt.Errorf("auth: exchanging Google code: %w", err)
	}

	var u googleUser
	if err := getJSON(ctx, p.config.Client(ctx, token), p.userInfoURL, &u); err != nil {
		return model.Identity{}, err
	}
	if u.Email == "" || !u.EmailVerified {
		return model.Identity{}, errors.New("auth: Google account has no verified email")
	}

	return model.Identity{
		Provider:  p.Name(),
		Email:     strings.ToLower(u.Email),
		Name:      u.Name,
		AvatarURL: u.Picture,
	}, nil
}

// getJSON GETs url with the provider's authenticated client and decodes
// a 200 response into out.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("auth: building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: %s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth: decoding %s: %w", url, err)
	}
	return nil
}
