package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConjurToken(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conjur-token.json")
	token := `{"protected": "eyJh", "payload": "eyJz", "signature": "sig"}`
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConjurResolver_Resolve(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("s3cret\n"))
	}))
	defer server.Close()

	r, err := NewConjurResolver(ConjurOptions{
		Addr:      server.URL,
		Account:   "myorg",
		TokenPath: writeConjurToken(t),
	})
	if err != nil {
		t.Fatalf("NewConjurResolver failed: %v", err)
	}

	got, err := r.Resolve(context.Background(), map[string]string{
		"db_password": "policy/prod !var prod/db/password",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if got["db_password"] != "s3cret" {
		t.Errorf("Expected trimmed body, got %q", got["db_password"])
	}
	if gotPath != "/secrets/myorg/variable/prod/db/password" {
		t.Errorf("Unexpected request path %q", gotPath)
	}

	// The header carries the base64 of the compacted JSON token.
	if !strings.HasPrefix(gotAuth, `Token token="`) || !strings.HasSuffix(gotAuth, `"`) {
		t.Fatalf("Unexpected authorization header %q", gotAuth)
	}
	encoded := strings.TrimSuffix(strings.TrimPrefix(gotAuth, `Token token="`), `"`)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("Header token is not base64: %v", err)
	}
	var tok map[string]string
	if err := json.Unmarshal(decoded, &tok); err != nil {
		t.Fatalf("Header token is not JSON: %v", err)
	}
	if tok["signature"] != "sig" {
		t.Errorf("Expected identity token in header, got %v", tok)
	}
}

func TestConjurResolver_MissingMarker(t *testing.T) {
	r, err := NewConjurResolver(ConjurOptions{
		Addr:      "http://conjur.invalid",
		Account:   "myorg",
		TokenPath: writeConjurToken(t),
	})
	if err != nil {
		t.Fatalf("NewConjurResolver failed: %v", err)
	}

	_, err = r.Resolve(context.Background(), map[string]string{"k": "prod/db/password"})
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("Expected ResolutionError, got %v", err)
	}
	if resErr.Key != "k" {
		t.Errorf("Expected key in error, got %q", resErr.Key)
	}
}

func TestConjurResolver_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	r, err := NewConjurResolver(ConjurOptions{
		Addr:      server.URL,
		Account:   "myorg",
		TokenPath: writeConjurToken(t),
	})
	if err != nil {
		t.Fatalf("NewConjurResolver failed: %v", err)
	}

	if _, err := r.Resolve(context.Background(), map[string]string{"k": "!var x"}); err == nil {
		t.Fatal("Expected error for non-OK appliance response")
	}
}

func TestConjurTransport_VerifyFlag(t *testing.T) {
	for _, verify := range []string{"", "true", "TRUE"} {
		tr, err := conjurTransport(verify)
		if err != nil {
			t.Fatalf("conjurTransport(%q) failed: %v", verify, err)
		}
		if tr.TLSClientConfig != nil && tr.TLSClientConfig.InsecureSkipVerify {
			t.Errorf("conjurTransport(%q) disabled verification", verify)
		}
	}

	tr, err := conjurTransport("False")
	if err != nil {
		t.Fatalf("conjurTransport(False) failed: %v", err)
	}
	if tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("Expected verification disabled for \"false\"")
	}

	// Anything else is treated as a CA bundle path.
	if _, err := conjurTransport("/nonexistent/ca.pem"); err == nil {
		t.Error("Expected error for unreadable CA bundle")
	}
}
