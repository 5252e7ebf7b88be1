package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEmbedderEncode_BatchRoundTrip(t *testing.T) {
	var captured embedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		_, _ = fmt.Fprintln(w, `{"embeddings":[[0.1,0.2],[0.3,0.4]]}`)
	}))
	defer server.Close()

	emb := NewEmbedder(server.URL, "embed-model", nil)
	vecs, err := emb.Encode(context.Background(), []string{"PMEGP subsidy", "Mudra loan"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if captured.Model != "embed-model" {
		t.Fatalf("expected model embed-model, got %s", captured.Model)
	}
	if len(captured.Input) != 2 || captured.Input[1] != "Mudra loan" {
		t.Fatalf("unexpected input: %v", captured.Input)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][1] != 0.4 {
		t.Fatalf("vectors out of order: %v", vecs)
	}
}

func TestEmbedderEncode_CountMismatchFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, `{"embeddings":[[0.1,0.2]]}`)
	}))
	defer server.Close()

	emb := NewEmbedder(server.URL, "embed-model", nil)
	_, err := emb.Encode(context.Background(), []string{"one", "two"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "1 embeddings for 2 texts") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbedderEncode_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	emb := NewEmbedder(server.URL, "embed-model", nil)
	_, err := emb.Encode(context.Background(), []string{"one"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("unexpected error: %v", err)
	}
}
