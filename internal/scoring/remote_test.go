package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// embedServer returns fixed unit vectors per input text: texts containing
// "transit" embed as (1,0), everything else as (0,1).
func embedServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var resp embedResponse
		for i, text := range req.Input {
			vec := []float32{0, 1}
			if strings.Contains(text, "transit") || strings.Contains(text, "train") || strings.Contains(text, "bus") {
				vec = []float32{1, 0}
			}
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vec, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestRemote(t *testing.T, endpoint string) *Remote {
	t.Helper()
	r, err := NewRemote(RemoteConfig{
		EmbedEndpoint: endpoint,
		Model:         "test-model",
		MaxRetries:    2,
		TimeoutSecs:   5,
	}, []ExemplarSet{
		{Name: "transit", Texts: []string{"the train is delayed", "bus service quality"}},
		{Name: "chatter", Texts: []string{"what a nice day outside"}},
	})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	return r
}

func TestRemoteSimilarity(t *testing.T) {
	srv := embedServer(t, nil)
	defer srv.Close()

	r := newTestRemote(t, srv.URL)
	ctx := context.Background()

	score, err := r.Similarity(ctx, "my train never came", "transit")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if score < 0.99 {
		t.Errorf("transit-like text scored %v, want ~1", score)
	}

	score, err = r.Similarity(ctx, "lovely weather today", "transit")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if score > 0.01 {
		t.Errorf("orthogonal text scored %v, want ~0", score)
	}
}

func TestRemoteSimilarityEmptyText(t *testing.T) {
	srv := embedServer(t, nil)
	defer srv.Close()

	r := newTestRemote(t, srv.URL)
	score, err := r.Similarity(context.Background(), "   ", "transit")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if score != 0 {
		t.Errorf("empty text scored %v, want 0", score)
	}
}

func TestRemoteUnknownSet(t *testing.T) {
	srv := embedServer(t, nil)
	defer srv.Close()

	r := newTestRemote(t, srv.URL)
	if _, err := r.Similarity(context.Background(), "text", "nope"); err == nil {
		t.Fatal("expected error for unknown exemplar set")
	}
}

func TestRemoteExemplarCaching(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, &calls)
	defer srv.Close()

	r := newTestRemote(t, srv.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Similarity(ctx, "bus stuff", "transit"); err != nil {
			t.Fatalf("Similarity: %v", err)
		}
	}
	// 1 exemplar-set call + 3 query calls.
	if got := calls.Load(); got != 4 {
		t.Errorf("server saw %d calls, want 4 (exemplars cached once)", got)
	}
}

func TestRemoteRetriesTransientFailure(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		var resp embedResponse
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{1, 0}, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	r, err := NewRemote(RemoteConfig{
		EmbedEndpoint: srv.URL,
		Model:         "test-model",
		MaxRetries:    2,
		TimeoutSecs:   5,
	}, []ExemplarSet{{Name: "transit", Texts: []string{"trains"}}})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}

	if _, err := r.Similarity(context.Background(), "the bus", "transit"); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if attempts.Load() < 2 {
		t.Errorf("server saw %d attempts, want >= 2", attempts.Load())
	}
}

func TestRemotePermanentFailureNotRetried(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r, err := NewRemote(RemoteConfig{
		EmbedEndpoint: srv.URL,
		Model:         "test-model",
		MaxRetries:    3,
		TimeoutSecs:   5,
	}, []ExemplarSet{{Name: "transit", Texts: []string{"trains"}}})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}

	if _, err := r.Similarity(context.Background(), "the bus", "transit"); err == nil {
		t.Fatal("expected error on 401")
	}
	if attempts.Load() != 1 {
		t.Errorf("server saw %d attempts, want 1 (401 is not retryable)", attempts.Load())
	}
}

func TestAggregateTopK(t *testing.T) {
	sims := []float64{0.9, 0.1, 0.5, 0.7}
	if got := aggregate(sims, 0); got != 0.9 {
		t.Errorf("max aggregate = %v, want 0.9", got)
	}
	want := (0.9 + 0.7 + 0.5) / 3
	if got := aggregate(sims, 3); got != want {
		t.Errorf("top-3 mean = %v, want %v", got, want)
	}
	if got := aggregate(nil, 3); got != 0 {
		t.Errorf("empty aggregate = %v, want 0", got)
	}
	// TopK larger than the set falls back to all exemplars.
	if got := aggregate([]float64{0.4, 0.2}, 5); got != 0.3 {
		t.Errorf("oversized topK = %v, want 0.3", got)
	}
}
