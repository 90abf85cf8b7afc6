package slackclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type OAuthResult struct {
	AccessToken string
	TeamID      string
	TeamName    string
}

// ExchangeOAuthCode redeems an installation authorization code via
// oauth.v2.access. A Slack-reported failure comes back as *APIError so the
// caller can surface the platform's error detail.
func (c *Client) ExchangeOAuthCode(ctx context.Context, clientID, clientSecret, code string) (OAuthResult, error) {
	if c == nil || c.http == nil {
		return OAuthResult{}, fmt.Errorf("slack client is not initialized")
	}
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	code = strings.TrimSpace(code)
	if clientID == "" || clientSecret == "" {
		return OAuthResult{}, fmt.Errorf("slack client_id and client_secret are required")
	}
	if code == "" {
		return OAuthResult{}, fmt.Errorf("authorization code is required")
	}

	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth.v2.access", strings.NewReader(form.Encode()))
	if err != nil {
		return OAuthResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return OAuthResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return OAuthResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OAuthResult{}, fmt.Errorf("slack oauth.v2.access http %d", resp.StatusCode)
	}

	var out struct {
		OK          bool   `json:"ok"`
		Error       string `json:"error,omitempty"`
		AccessToken string `json:"access_token"`
		Team        struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"team"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return OAuthResult{}, fmt.Errorf("parse oauth.v2.access response: %w", err)
	}
	if !out.OK {
		errCode := strings.TrimSpace(out.Error)
		if errCode == "" {
			errCode = "unknown_error"
		}
		return OAuthResult{}, &APIError{Method: "oauth.v2.access", Code: errCode}
	}

	token := strings.TrimSpace(out.AccessToken)
	teamID := strings.TrimSpace(out.Team.ID)
	if token == "" || teamID == "" {
		return OAuthResult{}, fmt.Errorf("oauth.v2.access response missing access_token or team id")
	}
	return OAuthResult{
		AccessToken: token,
		TeamID:      teamID,
		TeamName:    strings.TrimSpace(out.Team.Name),
	}, nil
}
