package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEmbedTimeout    = 30 * time.Second
	defaultEmbedDeployment = "text-embedding-3-small"
	embedAPIVersion        = "2024-02-15-preview"
)

// EmbedderConfig configures the embeddings endpoint. The endpoint speaks
// the Azure OpenAI deployments REST shape.
type EmbedderConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	Deployment string        `yaml:"deployment"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Embedder generates embedding vectors for catalog objects.
type Embedder struct {
	cfg  EmbedderConfig
	http *http.Client
}

// NewEmbedder validates cfg and returns an Embedder.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("embeddings endpoint and API key are required")
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Deployment == "" {
		cfg.Deployment = defaultEmbedDeployment
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEmbedTimeout
	}
	return &Embedder{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Embed produces the embedding for one object. The input text is the
// object name plus its column list.
func (e *Embedder) Embed(ctx context.Context, obj Object) ([]float64, error) {
	text := fmt.Sprintf("Table: %s, Columns: %s", obj.Name, strings.Join(obj.Columns, ", "))

	body, err := json.Marshal(map[string]string{"input": text})
	if err != nil {
		return nil, fmt.Errorf("encoding embeddings request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		e.cfg.Endpoint, e.cfg.Deployment, embedAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", e.cfg.APIKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embeddings endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var decoded struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("embeddings response contained no data")
	}
	return decoded.Data[0].Embedding, nil
}

// EmbedCatalog embeds every object and upserts it into the store.
func (e *Embedder) EmbedCatalog(ctx context.Context, store *Store, catalog []Object) error {
	for _, obj := range catalog {
		vector, err := e.Embed(ctx, obj)
		if err != nil {
			return fmt.Errorf("embedding %s: %w", obj.Name, err)
		}
		if err := store.Upsert(ctx, obj, vector); err != nil {
			return err
		}
	}
	return nil
}
