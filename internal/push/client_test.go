package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenSourceRegistersDevice(t *testing.T) {
	var gotDevice string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/registrations" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotDevice = body["device_id"]
		_, _ = w.Write([]byte(`{"token":"tok-123"}`))
	}))
	defer server.Close()

	source := NewTokenSource(server.URL+"/", func() (string, error) { return "device-1", nil })
	token, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "tok-123" || gotDevice != "device-1" {
		t.Fatalf("unexpected token %q device %q", token, gotDevice)
	}
}

func TestTokenSourceSurfacesRelayErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "relay down", http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewTokenSource(server.URL, func() (string, error) { return "device-1", nil })
	if _, err := source.Token(context.Background()); err == nil {
		t.Fatal("expected relay error")
	}
}

func TestTokenSourceRequiresRelayURL(t *testing.T) {
	source := NewTokenSource("", func() (string, error) { return "device-1", nil })
	if _, err := source.Token(context.Background()); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestFCMClientSendsDataMessage(t *testing.T) {
	var got sendRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":1,"failure":0}`))
	}))
	defer server.Close()

	client := NewFCMClient(server.URL, "server-key")
	err := client.Send(context.Background(), []string{"", "tok-1"}, map[string]string{"userId": "42", "message": "yo"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "key=server-key" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if len(got.RegistrationIDs) != 1 || got.RegistrationIDs[0] != "tok-1" || got.Data["message"] != "yo" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestFCMClientReportsTotalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":0,"failure":1,"results":[{"error":"NotRegistered"}]}`))
	}))
	defer server.Close()

	client := NewFCMClient(server.URL, "server-key")
	if err := client.Send(context.Background(), []string{"stale"}, nil); err == nil {
		t.Fatal("expected delivery failure")
	}
}

func TestFCMClientRequiresRecipients(t *testing.T) {
	client := NewFCMClient("http://unused", "server-key")
	if err := client.Send(context.Background(), []string{" "}, nil); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}
