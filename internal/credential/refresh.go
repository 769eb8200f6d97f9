package credential

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// OAuthRefresher refreshes tokens with a standard refresh_token grant
// against a provider token endpoint.
type OAuthRefresher struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

// NewOAuthRefresher builds a refresher for one provider's token endpoint.
func NewOAuthRefresher(tokenURL, clientID, clientSecret string) *OAuthRefresher {
	return &OAuthRefresher{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// Refresh posts the refresh_token grant and updates the credential in place.
func (r *OAuthRefresher) Refresh(ctx context.Context, cred *Credential) error {
	form := url.Values{
		"client_id":     {r.ClientID},
		"client_secret": {r.ClientSecret},
		"refresh_token": {cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("token response has no access_token")
	}

	cred.AccessToken = tr.AccessToken
	if tr.TokenType != "" {
		cred.TokenType = tr.TokenType
	} else if cred.TokenType == "" {
		cred.TokenType = "Bearer"
	}
	if tr.Scope != "" {
		cred.Scope = tr.Scope
	}
	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	cred.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	cred.Valid = true
	return nil
}
