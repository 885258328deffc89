package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voudp/internal/voiceserver"
)

func newTestVoiceServer(t *testing.T) *voiceserver.Server {
	t.Helper()
	cfg := voiceserver.DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.Passphrase = "testpass"
	vs, err := voiceserver.New(cfg, nil)
	if err != nil {
		t.Fatalf("new voice server: %v", err)
	}
	return vs
}

func TestHealthzReturnsOK(t *testing.T) {
	vs := newTestVoiceServer(t)
	srv := New(vs)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
}

func TestChannelsReturnsDefaultChannel(t *testing.T) {
	vs := newTestVoiceServer(t)
	stop := make(chan struct{})
	defer close(stop)
	go vs.Run(stop)

	// Run publishes a snapshot once per second; wait for the first one.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(vs.Snapshot().Channels) == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	srv := New(vs)
	ts := httptest.NewServer(srv.Echo())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/channels")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var channels []channelResponse
	if err := json.NewDecoder(resp.Body).Decode(&channels); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(channels) != 1 || channels[0].Name != "general" {
		t.Fatalf("expected one channel named general, got %+v", channels)
	}
}
