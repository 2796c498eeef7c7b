package transcript_sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Send(t *testing.T) {
	t.Run("posts the transcript as JSON", func(t *testing.T) {
		var received map[string]string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}

			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected application/json, got %q", ct)
			}

			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &received); err != nil {
				t.Errorf("invalid request body: %v", err)
			}
		}))
		defer server.Close()

		client, err := New(&Config{Endpoint: server.URL})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		if err := client.Send(context.Background(), "turn on the lights"); err != nil {
			t.Fatalf("Send: %v", err)
		}

		if received["text"] != "turn on the lights" {
			t.Errorf("expected transcript in body, got %v", received)
		}
	})

	t.Run("non-2xx responses are errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client, err := New(&Config{Endpoint: server.URL})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		if err := client.Send(context.Background(), "anything"); err == nil {
			t.Error("expected error for 500 response")
		}
	})
}
