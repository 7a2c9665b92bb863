// Package auth loads ChatGPT credentials from a codex-style auth.json file
// and refreshes the OAuth access token when the upstream rejects it.
package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mizuikk/codex-openai-wrapper/internal/json"
	log "github.com/mizuikk/codex-openai-wrapper/internal/logging"
	"github.com/mizuikk/codex-openai-wrapper/internal/upstream"
)

const (
	tokenEndpoint = "https://auth.openai.com/oauth/token"
	oauthClientID = "app_EMoamEEZ73f0CkXaXp7hrann"
)

// authFile mirrors the on-disk auth.json layout written by the codex CLI.
type authFile struct {
	OpenAIAPIKey string     `json:"OPENAI_API_KEY,omitempty"`
	Tokens       authTokens `json:"tokens"`
	LastRefresh  string     `json:"last_refresh,omitempty"`
}

type authTokens struct {
	IDToken      string `json:"id_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
}

// FileProvider implements upstream.CredentialProvider over an auth.json file.
// Refresh persists the new tokens back to disk so restarts reuse them.
type FileProvider struct {
	mu   sync.Mutex
	path string
	http *http.Client

	loaded bool
	file   authFile
}

// NewFileProvider returns a provider reading credentials from path. The file
// is loaded lazily on first use so a missing file only fails requests that
// actually need it.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{
		path: path,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ upstream.CredentialProvider = (*FileProvider)(nil)

// Credentials returns the current token set, loading the file on first call.
func (p *FileProvider) Credentials(context.Context) (upstream.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(); err != nil {
		return upstream.Credentials{}, err
	}
	return upstream.Credentials{
		AccessToken: p.file.Tokens.AccessToken,
		AccountID:   p.file.Tokens.AccountID,
		APIKey:      p.file.OpenAIAPIKey,
	}, nil
}

// Refresh exchanges the stored refresh token for a new access token and
// writes the updated file back.
func (p *FileProvider) Refresh(ctx context.Context) (upstream.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loadLocked(); err != nil {
		return upstream.Credentials{}, err
	}
	if p.file.Tokens.RefreshToken == "" {
		return upstream.Credentials{}, errors.New("auth.json has no refresh_token")
	}

	body, err := json.Marshal(map[string]string{
		"client_id":     oauthClientID,
		"grant_type":    "refresh_token",
		"refresh_token": p.file.Tokens.RefreshToken,
		"scope":         "openid profile email",
	})
	if err != nil {
		return upstream.Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, bytes.NewReader(body))
	if err != nil {
		return upstream.Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return upstream.Credentials{}, fmt.Errorf("token refresh request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstream.Credentials{}, fmt.Errorf("token refresh returned %d", resp.StatusCode)
	}

	var refreshed struct {
		IDToken      string `json:"id_token"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		return upstream.Credentials{}, fmt.Errorf("decode token refresh response: %w", err)
	}
	if refreshed.AccessToken == "" {
		return upstream.Credentials{}, errors.New("token refresh response missing access_token")
	}

	p.file.Tokens.AccessToken = refreshed.AccessToken
	if refreshed.IDToken != "" {
		p.file.Tokens.IDToken = refreshed.IDToken
	}
	if refreshed.RefreshToken != "" {
		p.file.Tokens.RefreshToken = refreshed.RefreshToken
	}
	p.file.LastRefresh = time.Now().UTC().Format(time.RFC3339)

	if err := p.persistLocked(); err != nil {
		log.WithError(err).Warnf("failed to persist refreshed tokens to %s", p.path)
	}

	return upstream.Credentials{
		AccessToken: p.file.Tokens.AccessToken,
		AccountID:   p.file.Tokens.AccountID,
		APIKey:      p.file.OpenAIAPIKey,
	}, nil
}

func (p *FileProvider) loadLocked() error {
	if p.loaded {
		return nil
	}
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read auth file: %w", err)
	}
	var f authFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse auth file %s: %w", p.path, err)
	}
	p.file = f
	p.loaded = true
	return nil
}

func (p *FileProvider) persistLocked() error {
	raw, err := json.MarshalIndent(p.file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, raw, 0o600)
}

// StaticProvider serves fixed credentials, used for the API-key auth modes
// and in tests.
type StaticProvider struct {
	Creds upstream.Credentials
}

func (p *StaticProvider) Credentials(context.Context) (upstream.Credentials, error) {
	return p.Creds, nil
}

func (p *StaticProvider) Refresh(context.Context) (upstream.Credentials, error) {
	return p.Creds, nil
}
