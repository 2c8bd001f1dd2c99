package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// RemoteEmbedder sends images to an HTTP embedding service. The request is
//
//	POST <url>  {"model": "...", "images": ["<base64>", ...]}
//
// and the response is {"embeddings": [[...], ...]} in request order.
type RemoteEmbedder struct {
	URL    string
	Name   string
	Client *http.Client
}

// NewRemote returns a remote embedder. An empty url yields ErrNoURL.
func NewRemote(url, name string, timeout time.Duration) (*RemoteEmbedder, error) {
	if url == "" {
		return nil, ErrNoURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteEmbedder{URL: url, Name: name, Client: &http.Client{Timeout: timeout}}, nil
}

func (r *RemoteEmbedder) Model() string {
	if r.Name != "" {
		return "remote:" + r.Name
	}
	return "remote:" + r.URL
}

func (r *RemoteEmbedder) Embed(ctx context.Context, path string) ([]float64, error) {
	vecs, errs := r.EmbedBatch(ctx, []string{path})
	if errs[0] != nil {
		return nil, errs[0]
	}
	return vecs[0], nil
}

type remoteRequest struct {
	Model  string   `json:"model,omitempty"`
	Images [][]byte `json:"images"`
}

type remoteResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// EmbedBatch embeds paths with one request. Unreadable files fail
// individually; a transport or protocol failure fails every path.
func (r *RemoteEmbedder) EmbedBatch(ctx context.Context, paths []string) ([][]float64, []error) {
	vecs := make([][]float64, len(paths))
	errs := make([]error, len(paths))

	req := remoteRequest{Model: r.Name}
	var sent []int
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			errs[i] = err
			continue
		}
		req.Images = append(req.Images, data)
		sent = append(sent, i)
	}
	if len(sent) == 0 {
		return vecs, errs
	}

	got, err := r.post(ctx, req)
	if err == nil && len(got) != len(sent) {
		err = fmt.Errorf("remote embedder returned %d vectors for %d images", len(got), len(sent))
	}
	for k, i := range sent {
		if err != nil {
			errs[i] = err
			continue
		}
		vecs[i] = got[k]
	}
	return vecs, errs
}

func (r *RemoteEmbedder) post(ctx context.Context, body remoteRequest) ([][]float64, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote embed: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Embeddings, nil
}
