// Package federation bridges third-party OAuth2 identity providers into
// local accounts. The set of providers is closed; each Kind knows its own
// endpoints and profile format.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"golang.org/x/oauth2"
)

// Kind identifies a supported identity provider.
type Kind int

const (
	Google Kind = iota + 1
)

// String returns the lowercase provider name.
func (k Kind) String() string {
	switch k {
	case Google:
		return "google"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// CallbackPath returns the path the provider redirects back to.
func (k Kind) CallbackPath() string {
	return "/auth/" + k.String() + "/callback"
}

// ErrUpstream wraps any failure talking to the provider.
var ErrUpstream = errors.New("federation: identity provider request failed")

var errUnsupportedKind = errors.New("federation: unsupported provider kind")

// Profile is the identity asserted by a provider.
type Profile struct {
	Name          string
	Email         string
	EmailVerified bool
	PictureURL    *string
}

var googleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const googleProfileURL = "https://www.googleapis.com/oauth2/v1/userinfo?alt=json"

// Config configures a provider. BaseURL is the public URL of this service;
// the redirect URL is derived from it. Endpoint and ProfileURL override the
// provider defaults (tests point them at a local server).
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string

	Endpoint   *oauth2.Endpoint
	ProfileURL string
	HTTPClient *http.Client
}

// Provider runs the authorization-code flow against one identity provider.
type Provider struct {
	kind       Kind
	oauth      *oauth2.Config
	profileURL string
	client     *http.Client
}

// New builds a provider of the given kind.
func New(kind Kind, cfg Config) (*Provider, error) {
	var (
		endpoint   oauth2.Endpoint
		profileURL string
		scopes     []string
	)

	switch kind {
	case Google:
		endpoint = googleEndpoint
		profileURL = googleProfileURL
		scopes = []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		}
	default:
		return nil, errUnsupportedKind
	}

	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	if cfg.ProfileURL != "" {
		profileURL = cfg.ProfileURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{
		kind: kind,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + kind.CallbackPath(),
			Scopes:       scopes,
		},
		profileURL: profileURL,
		client:     client,
	}, nil
}

// Kind reports which identity provider p talks to.
func (p *Provider) Kind() Kind { return p.kind }

// NewState returns a random CSRF token for one authorization round trip.
func NewState() (string, error) {
	return common.MakeRandHexString(16)
}

// AuthorizationURL is where the user agent is sent to authenticate.
func (p *Provider) AuthorizationURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the user's profile.
func (p *Provider) Exchange(ctx context.Context, code string) (*Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange code: %v", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	resp, err := p.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch profile: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read profile: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: profile status %d", ErrUpstream, resp.StatusCode)
	}

	profile, err := p.decodeProfile(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return profile, nil
}

type googleProfile struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Picture       string `json:"picture"`
}

func (p *Provider) decodeProfile(body []byte) (*Profile, error) {
	switch p.kind {
	case Google:
		var g googleProfile
		if err := json.Unmarshal(body, &g); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		if g.Email == "" {
			return nil, errors.New("profile has no email")
		}
		profile := &Profile{Name: g.Name, Email: g.Email, EmailVerified: g.VerifiedEmail}
		if g.Picture != "" {
			pic := g.Picture
			profile.PictureURL = &pic
		}
		return profile, nil
	default:
		return nil, errUnsupportedKind
	}
}
