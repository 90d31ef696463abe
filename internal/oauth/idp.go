package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// IdPConfig describes the upstream identity provider the gateway delegates
// end-user authentication to.
type IdPConfig struct {
	// Name appears in the callback path: /oauth/{name}/callback.
	Name string `yaml:"name"`

	AuthURL     string `yaml:"authUrl"`
	TokenURL    string `yaml:"tokenUrl"`
	UserInfoURL string `yaml:"userInfoUrl"`

	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	Scopes       []string `yaml:"scopes"`
}

// UserProfile is the identity resolved from the IdP's userinfo endpoint.
type UserProfile struct {
	// ID is the stable user identifier notebridge routes by: the IdP's
	// email when present, the subject otherwise.
	ID    string
	Email string
	Name  string
}

// IdPClient performs the upstream OAuth round trip: building the authorize
// redirect, exchanging the callback code, and resolving the user profile.
type IdPClient struct {
	config     IdPConfig
	oauthCfg   *oauth2.Config
	httpClient *http.Client
}

// NewIdPClient builds the upstream client. externalURL is this gateway's
// public base URL, used to derive the registered callback.
func NewIdPClient(cfg IdPConfig, externalURL string) *IdPClient {
	return &IdPClient{
		config: cfg,
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  fmt.Sprintf("%s/oauth/%s/callback", externalURL, cfg.Name),
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the IdP identifier used in the callback path.
func (c *IdPClient) Name() string {
	return c.config.Name
}

// AuthCodeURL returns the upstream authorize URL carrying our state token.
func (c *IdPClient) AuthCodeURL(state string) string {
	return c.oauthCfg.AuthCodeURL(state)
}

// Exchange trades the upstream callback code for an upstream access token.
func (c *IdPClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("upstream code exchange failed: %w", err)
	}
	return token, nil
}

// FetchUser resolves the user profile behind an upstream access token.
func (c *IdPClient) FetchUser(ctx context.Context, token *oauth2.Token) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("userinfo request returned %d: %s", resp.StatusCode, body)
	}

	var raw struct {
		Sub   string `json:"sub"`
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	profile := &UserProfile{Email: raw.Email, Name: raw.Name}
	switch {
	case raw.Email != "":
		profile.ID = raw.Email
	case raw.Sub != "":
		profile.ID = raw.Sub
	case raw.ID != "":
		profile.ID = raw.ID
	default:
		return nil, fmt.Errorf("userinfo response carries no usable identifier")
	}
	return profile, nil
}
