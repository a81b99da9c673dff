package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/repoatlas/repoatlas/internal/githubrepo"
)

// cloudRunTimeout bounds a single extended-analysis request.
const cloudRunTimeout = 30 * time.Second

// CloudRunClient calls an optional Cloud Run service for extended
// repository analysis. The service is best-effort: callers treat any error
// as "no extra insight".
type CloudRunClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewCloudRunClient creates a client for the service at baseURL,
// authenticating every request with the bearer token.
func NewCloudRunClient(baseURL, token string) *CloudRunClient {
	return &CloudRunClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: cloudRunTimeout},
	}
}

// analyzeRequest is the POST body for the /analyze endpoint.
type analyzeRequest struct {
	Repository string            `json:"repository"`
	Files      map[string]string `json:"files"`
}

// Analyze POSTs the repository contents to the service and returns the
// response body as insight text.
func (c *CloudRunClient) Analyze(ctx context.Context, repoName string, files []githubrepo.FileRecord) (string, error) {
	payload := analyzeRequest{
		Repository: repoName,
		Files:      make(map[string]string, len(files)),
	}
	for _, f := range files {
		payload.Files[f.Path] = f.Content
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create analyze request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("analyze request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("analyze request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read analyze response: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}
