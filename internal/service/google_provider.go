package service

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/wastetrack/wastetrack/internal/config"
)

var defaultGoogleScopes = []string{
	googleoauth.UserinfoEmailScope,
	googleoauth.UserinfoProfileScope,
}

// GoogleProvider implements IdentityProvider for Google sign in
type GoogleProvider struct {
	oauth       *oauth2.Config
	apiEndpoint string
	httpClient  *http.Client
}

// GoogleOption customizes a GoogleProvider
type GoogleOption func(*GoogleProvider)

// WithGoogleEndpoints points the provider at other authorization, token and
// userinfo endpoints. Used by tests.
func WithGoogleEndpoints(authURL, tokenURL, apiURL string) GoogleOption {
	return func(p *GoogleProvider) {
		p.oauth.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
		p.apiEndpoint = apiURL
	}
}

// WithGoogleHTTPClient sets the HTTP client used for the token exchange
func WithGoogleHTTPClient(c *http.Client) GoogleOption {
	return func(p *GoogleProvider) {
		p.httpClient = c
	}
}

// NewGoogleProvider creates a GoogleProvider from the client configuration
func NewGoogleProvider(cfg config.GoogleOAuthConfig, opts ...GoogleOption) *GoogleProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultGoogleScopes
	}
	p := &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthCodeURL returns the consent page URL carrying state
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for a token and fetches the
// profile it grants access to.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*ExternalProfile, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google: code exchange failed: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(p.oauth.Client(ctx, tok))}
	if p.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.apiEndpoint))
	}
	svc, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google: failed to fetch profile: %w", err)
	}

	// verified_email is omitted by the API when true
	verified := info.VerifiedEmail == nil || *info.VerifiedEmail
	return &ExternalProfile{
		ProviderID:    info.Id,
		Email:         info.Email,
		EmailVerified: verified,
		Name:          info.Name,
	}, nil
}
