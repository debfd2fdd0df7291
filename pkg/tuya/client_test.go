package tuya

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

const (
	testAccessID  = "4y5nrecaevsvo5zzj4sh"
	testAccessKey = "5c6f0e1b4d2a4e8f9a3b7c1d2e3f4a5b"
)

func TestSign(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		method string
		rawURL string
		body   []byte
		want   string
	}{
		{
			name:   "token request",
			method: http.MethodGet,
			rawURL: "https://openapi.tuyaeu.com/v1.0/token?grant_type=1",
			want:   "284013C1E2A562A484FDEFE38E2C849C289A915ECB647646DDD2E4704AF697C8",
		},
		{
			name:   "command with body",
			token:  "tok",
			method: http.MethodPost,
			rawURL: "https://openapi.tuyaeu.com/v1.0/iot-03/devices/plug/commands",
			body:   []byte(`{"commands":[{"code":"switch_3","value":true}]}`),
			want:   "5374CB9D37646BA27D539758104FE590BA321526DE305FCD5912389087D0E434",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.rawURL)
			if err != nil {
				t.Fatal(err)
			}
			got := Sign(testAccessID, testAccessKey, tt.token, "1588925778000", tt.method, u, tt.body)
			if got != tt.want {
				t.Errorf("Sign() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSignedURLSortsQuery(t *testing.T) {
	u, _ := url.Parse("https://x/v1.0/x?b=2&a=1")
	if got := signedURL(u); got != "/v1.0/x?a=1&b=2" {
		t.Errorf("signedURL() = %q", got)
	}
	u, _ = url.Parse("https://x/v1.0/x")
	if got := signedURL(u); got != "/v1.0/x" {
		t.Errorf("signedURL() = %q", got)
	}
}

// fakeCloud is a minimal stand-in for the Tuya OpenAPI.
type fakeCloud struct {
	mu          sync.Mutex
	tokenCalls  int
	statusCalls int
	commands    []string
	switchOn    bool
	statusReply string // overrides the status reply when set
	badSigns    int
}

func (f *fakeCloud) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		body, _ := io.ReadAll(r.Body)
		var bodyArg []byte
		if len(body) > 0 {
			bodyArg = body
		}
		want := Sign(r.Header.Get("client_id"), testAccessKey, r.Header.Get("access_token"), r.Header.Get("t"), r.Method, r.URL, bodyArg)
		if r.Header.Get("sign") != want || r.Header.Get("sign_method") != "HMAC-SHA256" {
			f.badSigns++
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1.0/token":
			f.tokenCalls++
			io.WriteString(w, `{"success":true,"result":{"access_token":"tok","expire_time":7200,"refresh_token":"r","uid":"u"},"t":1}`)
		case "/v1.0/iot-03/devices/plug/status":
			f.statusCalls++
			if f.statusReply != "" {
				io.WriteString(w, f.statusReply)
				return
			}
			value := "false"
			if f.switchOn {
				value = "true"
			}
			io.WriteString(w, `{"success":true,"result":[{"code":"switch_1","value":false},{"code":"switch_3","value":`+value+`}],"t":1}`)
		case "/v1.0/iot-03/devices/plug/commands":
			f.commands = append(f.commands, string(body))
			io.WriteString(w, `{"success":true,"result":true,"t":1}`)
		default:
			io.WriteString(w, `{"success":false,"code":1106,"msg":"permission deny","t":1}`)
		}
	})
}

func newTestClient(t *testing.T, f *fakeCloud) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", testAccessID, testAccessKey)
}

func TestClientCachesToken(t *testing.T) {
	f := &fakeCloud{}
	c := newTestClient(t, f)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Get(ctx, "/v1.0/iot-03/devices/plug/status"); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if f.tokenCalls != 1 {
		t.Errorf("token fetched %d times, want 1", f.tokenCalls)
	}
	if f.badSigns != 0 {
		t.Errorf("%d requests carried a bad signature", f.badSigns)
	}
}

func TestClientRefreshesExpiredToken(t *testing.T) {
	f := &fakeCloud{}
	c := newTestClient(t, f)
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := c.Get(ctx, "/v1.0/iot-03/devices/plug/status"); err != nil {
		t.Fatal(err)
	}
	if f.tokenCalls != 2 {
		t.Errorf("token fetched %d times, want 2", f.tokenCalls)
	}
}

func TestClientAPIError(t *testing.T) {
	f := &fakeCloud{}
	c := newTestClient(t, f)

	_, err := c.Get(context.Background(), "/v1.0/unknown")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Get() error = %v, want *APIError", err)
	}
	if apiErr.Code != 1106 || apiErr.Msg != "permission deny" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestClientHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testAccessID, testAccessKey)
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect() should fail on HTTP 502")
	}
}
