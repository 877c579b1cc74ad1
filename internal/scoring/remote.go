package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RemoteConfig holds the configuration for the HTTP text-scoring service.
// The embeddings endpoint speaks the OpenAI-compatible /v1/embeddings format;
// the sentiment endpoint uses the same request shape and returns one score
// per input.
type RemoteConfig struct {
	EmbedEndpoint     string
	SentimentEndpoint string
	Model             string
	APIKey            string
	MaxRetries        int // bounded backoff attempts (default: 3)
	TimeoutSecs       int // per-request timeout (default: 60)
	MaxConcurrency    int // service's concurrent-request budget (default: 4)
}

// HTTPError carries status context so callers can distinguish transient
// failures (retried) from permanent ones.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// retryable reports whether the failure class is worth another attempt.
func (e *HTTPError) retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type sentimentResponse struct {
	Data []struct {
		Score float64 `json:"score"`
		Index int     `json:"index"`
	} `json:"data"`
}

// Remote implements Scorer against an external inference service. Exemplar
// set embeddings are computed once on first use and cached normalized, so
// similarity is a dot product per exemplar afterwards.
type Remote struct {
	config RemoteConfig
	http   *http.Client

	mu   sync.Mutex
	sets map[string]ExemplarSet
	embs map[string][][]float32 // set name -> normalized exemplar embeddings
}

// NewRemote builds a Remote scorer with the given exemplar sets registered.
func NewRemote(cfg RemoteConfig, sets []ExemplarSet) (*Remote, error) {
	if cfg.EmbedEndpoint == "" {
		return nil, fmt.Errorf("embed endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 60
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	r := &Remote{
		config: cfg,
		http:   &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		sets:   make(map[string]ExemplarSet, len(sets)),
		embs:   make(map[string][][]float32, len(sets)),
	}
	for _, s := range sets {
		if s.Name == "" || len(s.Texts) == 0 {
			return nil, fmt.Errorf("exemplar set %q is empty", s.Name)
		}
		r.sets[s.Name] = s
	}
	return r, nil
}

// Concurrency returns the service's concurrent-request budget.
func (r *Remote) Concurrency() int { return r.config.MaxConcurrency }

// Similarity scores one text against a registered exemplar set.
func (r *Remote) Similarity(ctx context.Context, text, set string) (float64, error) {
	scores, err := r.SimilarityBatch(ctx, []string{text}, set)
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// SimilarityBatch embeds all texts in one call and scores each against the
// set's cached exemplar embeddings.
func (r *Remote) SimilarityBatch(ctx context.Context, texts []string, set string) ([]float64, error) {
	s, ok := r.sets[set]
	if !ok {
		return nil, fmt.Errorf("unknown exemplar set %q", set)
	}
	setEmbs, err := r.setEmbeddings(ctx, s)
	if err != nil {
		return nil, err
	}

	embs, err := r.embedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts for set %s: %w", len(texts), set, err)
	}

	out := make([]float64, len(texts))
	for i, emb := range embs {
		if emb == nil { // empty text
			continue
		}
		q := normalize(emb)
		sims := make([]float64, 0, len(setEmbs))
		for _, ex := range setEmbs {
			d, err := dot(q, ex)
			if err != nil {
				return nil, fmt.Errorf("scoring against set %s: %w", set, err)
			}
			sims = append(sims, d)
		}
		out[i] = aggregate(sims, s.TopK)
	}
	return out, nil
}

// Sentiment scores one text's polarity.
func (r *Remote) Sentiment(ctx context.Context, text string) (float64, error) {
	scores, err := r.SentimentBatch(ctx, []string{text})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// SentimentBatch scores many texts in one call.
func (r *Remote) SentimentBatch(ctx context.Context, texts []string) ([]float64, error) {
	if r.config.SentimentEndpoint == "" {
		return nil, fmt.Errorf("sentiment endpoint not configured")
	}
	out := make([]float64, len(texts))
	nonEmpty, indexMap := compactTexts(texts)
	if len(nonEmpty) == 0 {
		return out, nil
	}

	body, err := r.postWithRetry(ctx, r.config.SentimentEndpoint, embedRequest{Model: r.config.Model, Input: nonEmpty})
	if err != nil {
		return nil, fmt.Errorf("sentiment request: %w", err)
	}
	var resp sentimentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing sentiment response: %w", err)
	}
	if len(resp.Data) != len(nonEmpty) {
		return nil, fmt.Errorf("sentiment response has %d scores for %d inputs", len(resp.Data), len(nonEmpty))
	}
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(indexMap) {
			return nil, fmt.Errorf("sentiment response index %d out of range", d.Index)
		}
		out[indexMap[d.Index]] = clampSentiment(d.Score)
	}
	return out, nil
}

// setEmbeddings returns the cached normalized exemplar embeddings for a set,
// computing them on first use.
func (r *Remote) setEmbeddings(ctx context.Context, s ExemplarSet) ([][]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.embs[s.Name]; ok {
		return cached, nil
	}
	embs, err := r.embedBatch(ctx, s.Texts)
	if err != nil {
		return nil, fmt.Errorf("embedding exemplar set %s: %w", s.Name, err)
	}
	norm := make([][]float32, len(embs))
	for i, e := range embs {
		if e == nil {
			return nil, fmt.Errorf("exemplar set %s has empty exemplar %d", s.Name, i)
		}
		norm[i] = normalize(e)
	}
	r.embs[s.Name] = norm
	return norm, nil
}

// embedBatch returns one embedding per input text; nil entries mark empty
// texts that were never sent to the service.
func (r *Remote) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	nonEmpty, indexMap := compactTexts(texts)
	if len(nonEmpty) == 0 {
		return out, nil
	}

	body, err := r.postWithRetry(ctx, r.config.EmbedEndpoint, embedRequest{Model: r.config.Model, Input: nonEmpty})
	if err != nil {
		return nil, err
	}
	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing embeddings response: %w", err)
	}
	if len(resp.Data) != len(nonEmpty) {
		return nil, fmt.Errorf("embeddings response has %d vectors for %d inputs", len(resp.Data), len(nonEmpty))
	}
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(indexMap) {
			return nil, fmt.Errorf("embeddings response index %d out of range", d.Index)
		}
		out[indexMap[d.Index]] = d.Embedding
	}
	return out, nil
}

// postWithRetry sends one JSON request with bounded exponential backoff,
// honoring Retry-After on 429s.
func (r *Remote) postWithRetry(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		body, err := r.post(ctx, endpoint, requestBody)
		if err == nil {
			return body, nil
		}
		lastErr = err

		httpErr, ok := err.(*HTTPError)
		if ok && !httpErr.retryable() {
			return nil, err
		}
		if attempt == r.config.MaxRetries {
			break
		}

		backoff := time.Duration(1<<attempt) * time.Second
		if ok && httpErr.StatusCode == 429 && httpErr.RetryAfter > 0 {
			backoff = httpErr.RetryAfter
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Dur("backoff", backoff).
			Str("endpoint", endpoint).Msg("scoring request retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("scoring request failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

func (r *Remote) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				httpErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, httpErr
	}
	return respBody, nil
}

// compactTexts filters empty texts, returning the survivors and a map from
// compacted index back to original index.
func compactTexts(texts []string) ([]string, []int) {
	nonEmpty := make([]string, 0, len(texts))
	indexMap := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) != "" {
			nonEmpty = append(nonEmpty, t)
			indexMap = append(indexMap, i)
		}
	}
	return nonEmpty, indexMap
}

func clampSentiment(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
