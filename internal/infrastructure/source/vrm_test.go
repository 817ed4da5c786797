package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"grid-pulse/internal/config"
	"grid-pulse/internal/domain/telemetry"
)

// fakePortal simulates the battery portal: token login plus a stats endpoint
// that rejects tokens it no longer considers valid.
type fakePortal struct {
	mu          sync.Mutex
	validTokens map[string]bool
	loginCount  int
	statsCount  int
	nextToken   string
}

func newFakePortal() *fakePortal {
	return &fakePortal{validTokens: map[string]bool{}, nextToken: "token-1"}
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.loginCount++
		token := p.nextToken
		p.validTokens[token] = true
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
	mux.HandleFunc("/installations/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.statsCount++
		token := strings.TrimPrefix(r.Header.Get("X-Authorization"), "Bearer ")
		if !p.validTokens[token] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		power := 1234.5
		soc := 87.0
		_ = json.NewEncoder(w).Encode(map[string]any{
			"records": map[string]any{"power_w": power, "soc_pct": soc},
		})
	})
	return mux
}

func (p *fakePortal) revokeAll(next string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validTokens = map[string]bool{}
	p.nextToken = next
}

func newPortalClient(t *testing.T, url string) *VRMClient {
	t.Helper()
	return NewVRMClient(config.VRMConfig{
		APIURL:         url,
		Username:       "ops",
		Password:       "secret",
		InstallationID: "482913",
	}, nil)
}

func TestVRMClient_LoginThenFetch(t *testing.T) {
	portal := newFakePortal()
	srv := httptest.NewServer(portal.handler())
	defer srv.Close()

	c := newPortalClient(t, srv.URL)

	reading, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if reading.Source != telemetry.SourceVRM {
		t.Fatalf("unexpected source %q", reading.Source)
	}
	if reading.InstallationID != "482913" {
		t.Fatalf("unexpected installation id %q", reading.InstallationID)
	}
	if reading.PowerW == nil || *reading.PowerW != 1234.5 {
		t.Fatalf("unexpected power reading %+v", reading.PowerW)
	}
	if reading.SocPct == nil || *reading.SocPct != 87.0 {
		t.Fatalf("unexpected soc reading %+v", reading.SocPct)
	}
	if len(reading.RawPayload) == 0 {
		t.Fatalf("expected raw payload to be retained")
	}
	if portal.loginCount != 1 {
		t.Fatalf("expected a single login, got %d", portal.loginCount)
	}
}

func TestVRMClient_ReusesSessionAcrossFetches(t *testing.T) {
	portal := newFakePortal()
	srv := httptest.NewServer(portal.handler())
	defer srv.Close()

	c := newPortalClient(t, srv.URL)

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(context.Background()); err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
	}
	if portal.loginCount != 1 {
		t.Fatalf("expected the session to be reused, got %d logins", portal.loginCount)
	}
}

func TestVRMClient_ReauthenticatesOnceOnExpiredSession(t *testing.T) {
	portal := newFakePortal()
	srv := httptest.NewServer(portal.handler())
	defer srv.Close()

	c := newPortalClient(t, srv.URL)

	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("initial fetch failed: %v", err)
	}

	portal.revokeAll("token-2")

	reading, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch after expiry failed: %v", err)
	}
	if reading.PowerW == nil {
		t.Fatalf("expected a reading after re-login")
	}
	if portal.loginCount != 2 {
		t.Fatalf("expected exactly one re-login, got %d logins", portal.loginCount)
	}
}

func TestVRMClient_SecondRejectionFailsTheCycle(t *testing.T) {
	// The portal hands out tokens it immediately refuses to honor.
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/auth/login") {
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "never-valid"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer rejecting.Close()

	c := newPortalClient(t, rejecting.URL)

	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatalf("expected failure after the single re-login attempt")
	}
}

func TestVRMClient_ConfiguredListsMissing(t *testing.T) {
	c := NewVRMClient(config.VRMConfig{APIURL: "http://portal.local"}, nil)

	err := c.Configured()
	if err == nil {
		t.Fatalf("expected configuration error")
	}
	for _, key := range []string{"VRM_USERNAME", "VRM_PASSWORD", "VRM_INSTALLATION_ID"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in error, got %v", key, err)
		}
	}
	if strings.Contains(err.Error(), "VRM_API_URL") {
		t.Fatalf("url is configured, must not be reported: %v", err)
	}
}
