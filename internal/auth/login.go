package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skratchdot/open-golang/open"
	"github.com/tidwall/gjson"

	"github.com/mizuikk/codex-openai-wrapper/internal/json"
	log "github.com/mizuikk/codex-openai-wrapper/internal/logging"
	"github.com/mizuikk/codex-openai-wrapper/internal/oauth/pkce"
)

const (
	authorizeEndpoint = "https://auth.openai.com/oauth/authorize"
	// The codex CLI registers this exact callback; the port is part of the
	// OAuth client registration and cannot be changed.
	callbackAddr = "localhost:1455"
	callbackPath = "/auth/callback"
)

// LoginOptions controls the interactive OAuth login flow.
type LoginOptions struct {
	// NoBrowser prints the authorization URL instead of opening a browser.
	NoBrowser bool
	// Timeout bounds the whole flow. Zero means 5 minutes.
	Timeout time.Duration
}

// Login runs the OAuth authorization-code flow with PKCE and writes the
// resulting tokens to authPath in the codex auth.json layout.
func Login(ctx context.Context, authPath string, opts LoginOptions) error {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	codes, err := pkce.Generate()
	if err != nil {
		return err
	}
	state, err := randomState()
	if err != nil {
		return err
	}

	authURL := buildAuthorizeURL(codes.CodeChallenge, state)

	type callbackResult struct {
		code string
		err  error
	}
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- callbackResult{err: errors.New("oauth state mismatch")}
			return
		}
		if errCode := q.Get("error"); errCode != "" {
			http.Error(w, errCode, http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("authorization failed: %s", errCode)}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			results <- callbackResult{err: errors.New("callback missing authorization code")}
			return
		}
		fmt.Fprint(w, "Login complete. You can close this tab and return to the terminal.")
		results <- callbackResult{code: code}
	})

	srv := &http.Server{Addr: callbackAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if opts.NoBrowser {
		fmt.Printf("Open this URL to authorize:\n\n  %s\n\n", authURL)
	} else {
		fmt.Println("Opening browser for login...")
		if err := open.Run(authURL); err != nil {
			log.WithError(err).Warnf("could not open browser")
			fmt.Printf("Open this URL to authorize:\n\n  %s\n\n", authURL)
		}
	}

	var code string
	select {
	case res := <-results:
		if res.err != nil {
			return res.err
		}
		code = res.code
	case err := <-errc:
		return fmt.Errorf("callback server: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("login timed out: %w", ctx.Err())
	}

	tokens, err := exchangeCode(ctx, code, codes.CodeVerifier)
	if err != nil {
		return err
	}
	return writeAuthFile(authPath, tokens)
}

func buildAuthorizeURL(challenge, state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", oauthClientID)
	q.Set("redirect_uri", "http://"+callbackAddr+callbackPath)
	q.Set("scope", "openid profile email offline_access")
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("state", state)
	q.Set("id_token_add_organizations", "true")
	q.Set("codex_cli_simplified_flow", "true")
	return authorizeEndpoint + "?" + q.Encode()
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func exchangeCode(ctx context.Context, code, verifier string) (authTokens, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  "http://" + callbackAddr + callbackPath,
		"client_id":     oauthClientID,
		"code_verifier": verifier,
	})
	if err != nil {
		return authTokens{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, bytes.NewReader(body))
	if err != nil {
		return authTokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return authTokens{}, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return authTokens{}, fmt.Errorf("token exchange returned %d", resp.StatusCode)
	}

	var exchanged struct {
		IDToken      string `json:"id_token"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&exchanged); err != nil {
		return authTokens{}, fmt.Errorf("decode token exchange response: %w", err)
	}
	if exchanged.AccessToken == "" {
		return authTokens{}, errors.New("token exchange response missing access_token")
	}

	return authTokens{
		IDToken:      exchanged.IDToken,
		AccessToken:  exchanged.AccessToken,
		RefreshToken: exchanged.RefreshToken,
		AccountID:    accountIDFromIDToken(exchanged.IDToken),
	}, nil
}

// accountIDFromIDToken pulls the ChatGPT account id out of the id_token's
// auth claim. An empty result just means the Chatgpt-Account-Id header is
// omitted later.
func accountIDFromIDToken(idToken string) string {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	return gjson.GetBytes(payload, `https://api\.openai\.com/auth.chatgpt_account_id`).String()
}

func writeAuthFile(path string, tokens authTokens) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	file := authFile{
		Tokens:      tokens,
		LastRefresh: time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return err
	}
	fmt.Printf("Credentials saved to %s\n", path)
	return nil
}
