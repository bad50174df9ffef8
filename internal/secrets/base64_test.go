package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestBase64Resolver_Resolve(t *testing.T) {
	r := &Base64Resolver{}

	got, err := r.Resolve(context.Background(), map[string]string{"pw": "cGFzcw"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got["pw"] != "pass" {
		t.Errorf("Expected pass, got %q", got["pw"])
	}
}

func TestBase64Resolver_RoundTripStrippedPadding(t *testing.T) {
	r := &Base64Resolver{}

	// Lengths chosen to need 0 through 3 padding characters.
	inputs := []string{"pass", "passw", "s3cret!", "p", "pä55wörd"}
	for _, plain := range inputs {
		ref := strings.TrimRight(base64.StdEncoding.EncodeToString([]byte(plain)), "=")
		got, err := r.Resolve(context.Background(), map[string]string{"k": ref})
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", ref, err)
		}
		if got["k"] != plain {
			t.Errorf("Expected %q, got %q", plain, got["k"])
		}
	}
}

func TestBase64Resolver_StripsTrailingWhitespace(t *testing.T) {
	r := &Base64Resolver{}

	ref := base64.StdEncoding.EncodeToString([]byte("value\n"))
	got, err := r.Resolve(context.Background(), map[string]string{"k": ref})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got["k"] != "value" {
		t.Errorf("Expected trailing newline stripped, got %q", got["k"])
	}
}

func TestBase64Resolver_AllOrNothing(t *testing.T) {
	r := &Base64Resolver{}

	_, err := r.Resolve(context.Background(), map[string]string{
		"good": "cGFzcw",
		"bad":  "%%%not-base64%%%",
	})
	if err == nil {
		t.Fatal("Expected error for undecodable reference")
	}

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("Expected ResolutionError, got %T", err)
	}
	if resErr.Backend != HandlerBase64 {
		t.Errorf("Expected base64 backend in error, got %q", resErr.Backend)
	}
	if resErr.Unwrap() == nil {
		t.Error("Expected original cause to be preserved")
	}
}

func TestBase64Resolver_RejectsInvalidUTF8(t *testing.T) {
	r := &Base64Resolver{}

	ref := base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd})
	if _, err := r.Resolve(context.Background(), map[string]string{"k": ref}); err == nil {
		t.Fatal("Expected error for non-UTF-8 secret")
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	tests := []struct {
		handler string
		want    string
	}{
		{handler: "", want: HandlerBase64},
		{handler: HandlerBase64, want: HandlerBase64},
		{handler: HandlerVault, want: HandlerVault},
		{handler: HandlerConjur, want: HandlerConjur},
	}
	for _, tt := range tests {
		r, err := New(Options{Handler: tt.handler})
		if err != nil {
			t.Fatalf("New(%q) failed: %v", tt.handler, err)
		}
		if r.Name() != tt.want {
			t.Errorf("New(%q) = %q backend, want %q", tt.handler, r.Name(), tt.want)
		}
	}

	if _, err := New(Options{Handler: "keychain"}); err == nil {
		t.Error("Expected error for unknown handler")
	}
}
