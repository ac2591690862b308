package googlecal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const tokenEndpoint = "https://oauth2.googleapis.com/token"

// tokenSource mints short-lived access tokens from the long-lived refresh
// token and caches them until shortly before expiry.
type tokenSource struct {
	clientID     string
	clientSecret string
	refreshToken string
	hc           *http.Client

	mu          sync.Mutex
	accessToken string
	expiry      time.Time
}

// token returns a valid access token, refreshing if the cached one expires
// within the next minute.
func (ts *tokenSource) token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.accessToken != "" && time.Until(ts.expiry) > time.Minute {
		return ts.accessToken, nil
	}

	form := url.Values{
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
		"refresh_token": {ts.refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("refreshing access token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return "", fmt.Errorf("token endpoint returned %d: %s %s — check google.* credentials",
			resp.StatusCode, body.Error, body.ErrorDescription)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	ts.accessToken = tok.AccessToken
	ts.expiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return ts.accessToken, nil
}
