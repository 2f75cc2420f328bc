// File path: internal/vector/chromadb.go
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmcasey/codeloom/internal/common"
	"github.com/jmcasey/codeloom/internal/common/telemetry"
)

// Embedder turns text into a query or document vector. The LLM provider
// implements this.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// FileDoc is one project file submitted for indexing.
type FileDoc struct {
	Path     string
	Content  string
	FileType string
	Imports  []string
}

// FileMatch is one ranked semantic search hit.
type FileMatch struct {
	FilePath   string
	Similarity float32
	FileType   string
	Imports    []string
}

// SearchOptions narrow a semantic query.
type SearchOptions struct {
	VersionID string
	Limit     int
	Threshold float32
	FileTypes []string
}

// Index is the semantic-search capability consumed by the context builder.
type Index interface {
	Available() bool
	UpsertFiles(ctx context.Context, projectID, versionID string, files []FileDoc) error
	SearchFiles(ctx context.Context, projectID, query string, opts SearchOptions) ([]FileMatch, error)
}

// Client talks to a ChromaDB instance over HTTP.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	embedder   Embedder

	baseURL      string
	collection   string
	collectionID string
	available    bool
	apiKey       string

	cfg Config

	mu sync.RWMutex
}

func NewFromEnv(ctx context.Context, embedder Embedder) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, embedder)
}

// New constructs a client using the provided configuration. An unreachable
// backend leaves the client in place but unavailable; retrieval degrades
// instead of failing.
func New(ctx context.Context, cfg Config, embedder Embedder) (*Client, error) {
	baseURL := fmt.Sprintf("%s://%s:%s/api/v1", cfg.Scheme, cfg.Host, cfg.Port)
	logger := common.Logger()
	logger.Info(
		"vector: initializing chromadb client",
		"host", cfg.Host,
		"port", cfg.Port,
		"collection", cfg.Collection,
		"timeout", cfg.Timeout,
	)

	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		MaxConnsPerHost:     cfg.HTTPMaxConnsPerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}

	client := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		transport:  transport,
		embedder:   embedder,
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: cfg.Collection,
		apiKey:     cfg.APIKey,
		cfg:        cfg,
	}

	if err := client.ensureReady(ctx); err != nil {
		logger.Warn("vector: chromadb initialization failed", "collection", cfg.Collection, "error", err)
		return client, nil
	}
	logger.Info("vector: chromadb connection established")
	return client, nil
}

func (c *Client) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

func (c *Client) Collection() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collection
}

func (c *Client) ensureReady(ctx context.Context) error {
	if c == nil {
		return errors.New("chromadb client not configured")
	}
	c.mu.RLock()
	available := c.available
	collectionID := c.collectionID
	c.mu.RUnlock()

	if available && collectionID != "" {
		return nil
	}
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = c.health(ctx)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			c.setAvailable(false)
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		}
	}
	if err != nil {
		c.setAvailable(false)
		return err
	}
	if err = c.ensureCollectionID(ctx); err != nil {
		c.setAvailable(false)
		return err
	}
	c.setAvailable(true)
	return nil
}

func (c *Client) setAvailable(v bool) {
	c.mu.Lock()
	c.available = v
	c.mu.Unlock()
}

// UpsertFiles indexes project files with embeddings derived from their
// content. IDs combine project and path so re-indexing a file replaces its
// previous entry.
func (c *Client) UpsertFiles(ctx context.Context, projectID, versionID string, files []FileDoc) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	if !c.Available() {
		return errors.New("chromadb unavailable")
	}
	if len(files) == 0 {
		return nil
	}
	if c.embedder == nil {
		return errors.New("embedder not configured")
	}
	ids := make([]string, 0, len(files))
	embeddings := make([][]float32, 0, len(files))
	documents := make([]string, 0, len(files))
	metadatas := make([]map[string]interface{}, 0, len(files))
	for _, file := range files {
		vector, err := c.embedder.EmbedText(ctx, file.Content)
		if err != nil {
			return fmt.Errorf("embed %s: %w", file.Path, err)
		}
		ids = append(ids, fmt.Sprintf("%s::%s", projectID, file.Path))
		embeddings = append(embeddings, vector)
		documents = append(documents, file.Content)
		metadatas = append(metadatas, metadataFromFile(projectID, versionID, file))
	}
	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"metadatas":  metadatas,
		"embeddings": embeddings,
	}
	endpoint := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, url.PathEscape(c.collectionID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		if errors.Is(err, errNotFound) {
			fallback := fmt.Sprintf("%s/collections/%s/add", c.baseURL, url.PathEscape(c.collectionID))
			if fallbackErr := c.doRequest(ctx, http.MethodPost, fallback, payload, nil); fallbackErr != nil {
				return fallbackErr
			}
			return nil
		}
		return err
	}
	return nil
}

func metadataFromFile(projectID, versionID string, file FileDoc) map[string]interface{} {
	metadata := map[string]interface{}{
		"project":   projectID,
		"file_path": file.Path,
		"file_type": file.FileType,
	}
	if versionID != "" {
		metadata["version"] = versionID
	}
	if len(file.Imports) > 0 {
		metadata["imports"] = strings.Join(file.Imports, "\n")
	}
	return metadata
}

// SearchFiles embeds the query and returns matches above the similarity
// threshold, best first.
func (c *Client) SearchFiles(ctx context.Context, projectID, query string, opts SearchOptions) ([]FileMatch, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	if !c.Available() {
		return nil, errors.New("chromadb unavailable")
	}
	if c.embedder == nil {
		return nil, errors.New("embedder not configured")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}
	vector, err := c.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	where := map[string]interface{}{"project": projectID}
	if opts.VersionID != "" {
		where = map[string]interface{}{
			"$and": []map[string]interface{}{
				{"project": projectID},
				{"version": opts.VersionID},
			},
		}
	}
	body := map[string]interface{}{
		"query_embeddings": [][]float32{vector},
		"n_results":        limit,
		"where":            where,
	}
	endpoint := fmt.Sprintf("%s/collections/%s/query", c.baseURL, url.PathEscape(c.collectionID))
	var resp struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
	}
	start := time.Now()
	err = c.doRequest(ctx, http.MethodPost, endpoint, body, &resp)
	telemetry.RecordVectorSearch(false, time.Since(start))
	if err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	allowed := map[string]struct{}{}
	for _, t := range opts.FileTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	matches := make([]FileMatch, 0, len(resp.IDs[0]))
	for idx := range resp.IDs[0] {
		match := FileMatch{}
		if len(resp.Metadatas) > 0 && idx < len(resp.Metadatas[0]) {
			meta := resp.Metadatas[0][idx]
			match.FilePath, _ = meta["file_path"].(string)
			match.FileType, _ = meta["file_type"].(string)
			if imports, ok := meta["imports"].(string); ok && imports != "" {
				match.Imports = strings.Split(imports, "\n")
			}
		}
		if match.FilePath == "" {
			continue
		}
		if len(resp.Distances) > 0 && idx < len(resp.Distances[0]) {
			match.Similarity = float32(1.0 / (1.0 + resp.Distances[0][idx]))
		}
		if opts.Threshold > 0 && match.Similarity < opts.Threshold {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(match.FileType)]; !ok {
				continue
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}

var _ Index = (*Client)(nil)

func (c *Client) ensureCollectionID(ctx context.Context) error {
	c.mu.RLock()
	if c.collectionID != "" {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()
	id, err := c.findCollection(ctx, c.collection)
	if err != nil {
		return err
	}
	if id != "" {
		c.mu.Lock()
		c.collectionID = id
		c.mu.Unlock()
		return nil
	}
	created, err := c.createCollection(ctx, c.collection)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.collectionID = created
	c.mu.Unlock()
	return nil
}

func (c *Client) findCollection(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/collections?name=%s", c.baseURL, url.QueryEscape(name))
	var resp struct {
		Collections []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return "", nil
		}
		// Fallback to enumerating collections when the name filter is unsupported.
		endpoint = fmt.Sprintf("%s/collections", c.baseURL)
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return "", err
		}
	}
	for _, col := range resp.Collections {
		if strings.EqualFold(col.Name, name) {
			return col.ID, nil
		}
	}
	return "", nil
}

func (c *Client) createCollection(ctx context.Context, name string) (string, error) {
	payload := map[string]interface{}{"name": name}
	endpoint := fmt.Sprintf("%s/collections", c.baseURL)
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		if errors.Is(err, errConflict) {
			return c.findCollection(ctx, name)
		}
		return "", err
	}
	return resp.ID, nil
}

var (
	errNotFound = errors.New("resource not found")
	errConflict = errors.New("resource conflict")
)

func (c *Client) health(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/heartbeat", c.baseURL)
	return c.doRequest(ctx, http.MethodGet, endpoint, nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	if c == nil {
		return errors.New("chromadb client not configured")
	}
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode == http.StatusConflict {
		return errConflict
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chromadb %s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	return decoder.Decode(out)
}

// Close releases pooled resources associated with the client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}
