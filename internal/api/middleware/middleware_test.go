package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatdesk-backend/internal/jwt"
)

func TestChainRunsFirstMiddlewareOutermost(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}

	h := Chain(func(w http.ResponseWriter, r *http.Request) { order = append(order, "handler") }, mark("a"), mark("b"))
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"a", "b", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestWidgetCORSAnswersAnyOriginPreflight(t *testing.T) {
	called := false
	h := CORS(WidgetCORS())(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/api/widget/v1/init", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-Requested-With, X-Session-Token" {
		t.Fatalf("allow headers = %q", got)
	}
	if called {
		t.Fatal("preflight reached the handler")
	}
}

func TestDashboardCORSRejectsUnknownOrigin(t *testing.T) {
	h := CORS(DashboardCORS([]string{"https://app.example.com"}))(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	h(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("allow credentials = %q, want true", got)
	}
}

func TestValidateAgentJWT(t *testing.T) {
	signer, err := jwt.NewSigner("secret")
	if err != nil {
		t.Fatal(err)
	}
	token, err := signer.CreateToken(jwt.Agent{Id: "agent-1", OrganizationID: "org-1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := signer.CreateToken(jwt.Agent{Id: "agent-1", OrganizationID: "org-1"}, time.Now().Add(-time.Hour).Unix())
	if err != nil {
		t.Fatal(err)
	}

	var seen jwt.Agent
	h := ValidateAgentJWT(signer)(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AgentFromContext(r.Context())
	})

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{name: "header", header: "Bearer " + token.AccessToken, status: http.StatusOK},
		{name: "query", query: token.AccessToken, status: http.StatusOK},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired.AccessToken, status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = jwt.Agent{}
			target := "/"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.status == http.StatusOK && seen.Id != "agent-1" {
				t.Fatalf("agent not in context: %+v", seen)
			}
		})
	}
}
