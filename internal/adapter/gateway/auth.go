package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"weatherdine/internal/domain"
)

// ClientInfo identifies the caller behind a connection.
type ClientInfo struct {
	Name string
}

type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// TokenEntry names the client a bearer token belongs to.
type TokenEntry struct {
	Token string
	Name  string
}

// StaticTokenAuth checks tokens against a fixed list. Only SHA-256 digests
// are kept, compared in constant time so neither content nor length leaks.
type StaticTokenAuth struct {
	digests [][sha256.Size]byte
	clients []*ClientInfo
}

// NewStaticTokenAuth ignores entries with an empty token.
func NewStaticTokenAuth(entries []TokenEntry) *StaticTokenAuth {
	a := &StaticTokenAuth{}
	for _, e := range entries {
		if e.Token == "" {
			continue
		}
		a.digests = append(a.digests, sha256.Sum256([]byte(e.Token)))
		a.clients = append(a.clients, &ClientInfo{Name: e.Name})
	}
	return a
}

func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	if token == "" {
		return nil, domain.ErrGatewayAuthFailed
	}
	sum := sha256.Sum256([]byte(token))
	match := -1
	for i := range s.digests {
		if subtle.ConstantTimeCompare(sum[:], s.digests[i][:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return nil, domain.ErrGatewayAuthFailed
	}
	return s.clients[match], nil
}

// OpenAuth lets everyone in. Bind the gateway to loopback when using it.
type OpenAuth struct{}

func (OpenAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous"}, nil
}

// requestToken reads a bearer token from the Authorization header, falling
// back to the token query parameter for browser WebSocket clients.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
