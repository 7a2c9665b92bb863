package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTestAuthFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCredentialsFromFile(t *testing.T) {
	path := writeTestAuthFile(t, `{
		"OPENAI_API_KEY": "sk-test",
		"tokens": {
			"access_token": "at-1",
			"refresh_token": "rt-1",
			"account_id": "acct-1"
		}
	}`)

	p := NewFileProvider(path)
	creds, err := p.Credentials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "at-1" || creds.AccountID != "acct-1" || creds.APIKey != "sk-test" {
		t.Errorf("creds = %+v", creds)
	}
}

func TestCredentialsMissingFile(t *testing.T) {
	p := NewFileProvider(filepath.Join(t.TempDir(), "nope.json"))
	if _, err := p.Credentials(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCredentialsMalformedFile(t *testing.T) {
	path := writeTestAuthFile(t, `{not json`)
	p := NewFileProvider(path)
	if _, err := p.Credentials(context.Background()); err == nil {
		t.Fatal("expected error for malformed file")
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	path := writeTestAuthFile(t, `{"tokens":{"access_token":"at-1"}}`)
	p := NewFileProvider(path)
	if _, err := p.Refresh(context.Background()); err == nil {
		t.Fatal("expected error without refresh_token")
	}
}

func TestStaticProvider(t *testing.T) {
	p := &StaticProvider{}
	creds, err := p.Credentials(context.Background())
	if err != nil || creds.AccessToken != "" {
		t.Errorf("creds = %+v, err = %v", creds, err)
	}
	if _, err := p.Refresh(context.Background()); err != nil {
		t.Errorf("refresh err = %v", err)
	}
}
