package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"weatherdine/internal/domain"
)

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth([]TokenEntry{{Token: "secret-123", Name: "dashboard"}})

	info, err := auth.Authenticate("secret-123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "dashboard" {
		t.Errorf("Name = %q", info.Name)
	}
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth([]TokenEntry{{Token: "secret-123", Name: "dashboard"}})

	_, err := auth.Authenticate("wrong-token")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrGatewayAuthFailed) {
		t.Errorf("err = %v, want ErrGatewayAuthFailed", err)
	}
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("err = %v, want it to wrap ErrAuthInvalid", err)
	}
}

func TestStaticTokenAuthEmpty(t *testing.T) {
	auth := NewStaticTokenAuth(nil)

	if _, err := auth.Authenticate("anything"); err == nil {
		t.Fatal("expected error for empty token list")
	}
}

func TestStaticTokenAuthSkipsBlankTokens(t *testing.T) {
	auth := NewStaticTokenAuth([]TokenEntry{{Token: "", Name: "blank"}})

	if _, err := auth.Authenticate(""); err == nil {
		t.Fatal("blank token must never authenticate")
	}
}

func TestOpenAuth(t *testing.T) {
	info, err := OpenAuth{}.Authenticate("")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "anonymous" {
		t.Errorf("Name = %q", info.Name)
	}
}

func TestStaticTokenAuthPicksOwner(t *testing.T) {
	auth := NewStaticTokenAuth([]TokenEntry{
		{Token: "alpha", Name: "dashboard"},
		{Token: "beta", Name: "cron"},
	})
	info, err := auth.Authenticate("beta")
	if err != nil || info.Name != "cron" {
		t.Fatalf("got %+v, %v", info, err)
	}
	if _, err := auth.Authenticate("alphabet"); err == nil {
		t.Error("prefix match must not authenticate")
	}
}

func TestRequestToken(t *testing.T) {
	tests := []struct {
		header, query, want string
	}{
		{"Bearer abc", "", "abc"},
		{"Bearer abc", "xyz", "abc"},
		{"", "xyz", "xyz"},
		{"Basic Zm9v", "xyz", "xyz"},
		{"", "", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws?token="+tt.query, nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := requestToken(r); got != tt.want {
			t.Errorf("header %q query %q: got %q, want %q", tt.header, tt.query, got, tt.want)
		}
	}
}
