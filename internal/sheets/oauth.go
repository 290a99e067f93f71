package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes needed to create and share spreadsheets.
var oauthScopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive.file",
}

// clientConfig is the OAuth client section of the downloaded Google
// credentials JSON ("installed" or "web").
type clientConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func loadClientConfig(rawJSON, filePath string) (clientConfig, error) {
	var raw []byte
	switch {
	case strings.TrimSpace(rawJSON) != "":
		raw = []byte(rawJSON)
	case strings.TrimSpace(filePath) != "":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return clientConfig{}, fmt.Errorf("read OAuth client file: %w", err)
		}
		raw = data
	default:
		return clientConfig{}, fmt.Errorf("missing OAuth client config: set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}

	var wrapper struct {
		Installed *clientConfig `json:"installed"`
		Web       *clientConfig `json:"web"`
		clientConfig
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return clientConfig{}, fmt.Errorf("decode OAuth client config: %w", err)
	}

	cfg := wrapper.clientConfig
	if wrapper.Installed != nil {
		cfg = *wrapper.Installed
	} else if wrapper.Web != nil {
		cfg = *wrapper.Web
	}
	if cfg.ClientID == "" {
		return clientConfig{}, fmt.Errorf("OAuth client config missing client_id")
	}
	return cfg, nil
}

func (e *GoogleExporter) oauthConfig(c clientConfig) *oauth2.Config {
	endpoint := e.endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       oauthScopes,
	}
}

func authInstructions(flow deviceFlow, now time.Time) string {
	minutes := int(flow.ExpiresAt.Sub(now).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf(
		"Google authorization required for sheet creation.\n"+
			"1) Open: %s\n"+
			"2) Enter code: %s\n"+
			"3) Approve Drive/Sheets access\n"+
			"4) Re-run the same search request\n"+
			"Code expires in about %d minute(s).",
		flow.VerificationURL, flow.UserCode, minutes,
	)
}

// startDeviceFlow requests a fresh device code from Google.
func (e *GoogleExporter) startDeviceFlow(ctx context.Context, cfg *oauth2.Config) (deviceFlow, error) {
	resp, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return deviceFlow{}, fmt.Errorf("google device authorization failed: %w", err)
	}

	verification := resp.VerificationURI
	if verification == "" {
		verification = "https://www.google.com/device"
	}
	return deviceFlow{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURL: verification,
		ExpiresAt:       resp.Expiry,
		Interval:        resp.Interval,
	}, nil
}

// tokenResponse is the token endpoint's reply to a device-code grant.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// pollDeviceFlow performs a single token-endpoint poll for a pending
// device flow. A single poll (instead of x/oauth2's blocking
// DeviceAccessToken loop) keeps the tool call non-blocking: the user
// re-runs the request after approving, and that retry completes the
// exchange.
func (e *GoogleExporter) pollDeviceFlow(ctx context.Context, cfg *oauth2.Config, flow deviceFlow) (tokenResponse, error) {
	form := url.Values{
		"client_id":   {cfg.ClientID},
		"device_code": {flow.DeviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}
	if cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("token endpoint request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("read token response: %w", err)
	}

	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenResponse{}, fmt.Errorf("decode token response (status %d): %w", resp.StatusCode, err)
	}
	if decoded.Error == "" && resp.StatusCode >= 400 {
		decoded.Error = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	return decoded, nil
}

// userToken resolves valid credentials for a user, advancing the
// device flow one step per call. Returns *AuthRequiredError while the
// user still has steps to complete.
func (e *GoogleExporter) userToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	client, err := loadClientConfig(e.clientJSON, e.clientFile)
	if err != nil {
		return nil, err
	}
	cfg := e.oauthConfig(client)
	now := e.now()

	// Saved token: use it, refreshing if possible.
	if saved, ok, err := e.tokens.Get(userID); err != nil {
		return nil, err
	} else if ok {
		tok := &oauth2.Token{
			AccessToken:  saved.AccessToken,
			RefreshToken: saved.RefreshToken,
			TokenType:    saved.TokenType,
			Expiry:       saved.Expiry,
		}
		if tok.Valid() {
			return tok, nil
		}
		if tok.RefreshToken != "" {
			refreshed, err := cfg.TokenSource(ctx, tok).Token()
			if err == nil {
				if err := e.saveToken(userID, refreshed, saved.RefreshToken); err != nil {
					return nil, err
				}
				return refreshed, nil
			}
		}
		// Stale and unrefreshable; fall through to a device flow.
		if err := e.tokens.Delete(userID); err != nil {
			return nil, err
		}
	}

	flow, havePending, err := e.flows.Get(userID)
	if err != nil {
		return nil, err
	}
	if havePending && flow.expired(now) {
		if err := e.flows.Delete(userID); err != nil {
			return nil, err
		}
		havePending = false
	}

	if !havePending {
		flow, err = e.startDeviceFlow(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := e.flows.Put(userID, flow); err != nil {
			return nil, err
		}
		return nil, &AuthRequiredError{Instructions: authInstructions(flow, now)}
	}

	token, err := e.pollDeviceFlow(ctx, cfg, flow)
	if err != nil {
		return nil, err
	}

	switch token.Error {
	case "":
		// fallthrough to success below

	case "authorization_pending", "slow_down":
		if token.Error == "slow_down" {
			flow.Interval += 5
			if err := e.flows.Put(userID, flow); err != nil {
				return nil, err
			}
		}
		return nil, &AuthRequiredError{Instructions: authInstructions(flow, now)}

	case "access_denied", "expired_token", "invalid_grant":
		if err := e.flows.Delete(userID); err != nil {
			return nil, err
		}
		fresh, err := e.startDeviceFlow(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := e.flows.Put(userID, fresh); err != nil {
			return nil, err
		}
		return nil, &AuthRequiredError{
			Instructions: "Google authorization was denied or expired.\n" + authInstructions(fresh, now),
		}

	default:
		return nil, fmt.Errorf("google OAuth token exchange failed: %s %s", token.Error, token.ErrorDescription)
	}

	tok := &oauth2.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       now.Add(time.Duration(token.ExpiresIn) * time.Second),
	}
	if err := e.saveToken(userID, tok, ""); err != nil {
		return nil, err
	}
	if err := e.flows.Delete(userID); err != nil {
		return nil, err
	}
	if !tok.Valid() {
		return nil, fmt.Errorf("google OAuth completed but credentials are invalid")
	}
	return tok, nil
}

// saveToken persists a token, keeping the previous refresh token when
// the response omitted one.
func (e *GoogleExporter) saveToken(userID string, tok *oauth2.Token, previousRefresh string) error {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return e.tokens.Put(userID, storedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	})
}
