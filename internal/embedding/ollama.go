package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"memoryweave/internal/logging"
)

// OllamaEngine generates embeddings using a local Ollama server. It is still
// a network call, but a loopback one — the retrieval system stays local-first
// while letting a user opt into a real embedding model instead of the hashing
// fallback.
type OllamaEngine struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaEngine creates an Ollama embedding engine, defaulting endpoint and
// model when unset. expectedDims is the store's configured dimensionality;
// if it disagrees with the engine's actual output dimensionality, this
// fails fast rather than letting a later put fail (or, worse, silently
// corrupt similarity search with mixed-dimension vectors). Pass 0 to skip
// the check when the caller doesn't yet know the store's dimensionality.
func NewOllamaEngine(endpoint, model string, expectedDims int) (*OllamaEngine, error) {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}
	e := &OllamaEngine{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	if expectedDims > 0 && expectedDims != e.Dimensions() {
		return nil, fmt.Errorf("ollama model %s produces %d-dimensional embeddings, store is configured for %d", model, e.Dimensions(), expectedDims)
	}
	logging.Embedding("creating ollama engine endpoint=%s model=%s dims=%d", endpoint, model, e.Dimensions())
	return e, nil
}

// Embed generates an embedding for a single text.
func (e *OllamaEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Ollama.Embed")
	defer timer.Stop()

	req := ollamaEmbedRequest{Model: e.model, Prompt: text}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(b))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	logging.EmbeddingDebug("ollama embed completed dims=%d", len(result.Embedding))
	return result.Embedding, nil
}

// EmbedBatch embeds each text sequentially: Ollama has no native batch
// embedding endpoint.
func (e *OllamaEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// HealthCheck verifies the Ollama server is reachable.
func (e *OllamaEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Dimensions returns the dimensionality embeddinggemma produces. Other
// Ollama models may differ; this engine is tuned for the default model.
func (e *OllamaEngine) Dimensions() int { return 768 }

// Name returns the engine name including the active model.
func (e *OllamaEngine) Name() string { return fmt.Sprintf("ollama:%s", e.model) }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}
