package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"hybrid-retrieval/internal/adapter/retrieval_http"
)

// apiClient posts JSON requests to the retrieval service.
type apiClient struct {
	baseURL  string
	tenantID string
	http     *http.Client
}

func newAPIClient(baseURL, tenantID string) *apiClient {
	return &apiClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tenantID: tenantID,
		http:     &http.Client{},
	}
}

// post sends body and returns the response when the status is 200.
// The caller closes the body.
func (c *apiClient) post(ctx context.Context, path string, body interface{}) (*http.Response, string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.tenantID != "" {
		req.Header.Set(retrieval_http.HeaderTenantID, c.tenantID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, requestID, fmt.Errorf("call %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, requestID, decodeErrorResponse(resp)
	}
	return resp, requestID, nil
}

func decodeErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var apiErr retrieval_http.ErrorResponse
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error != "" {
		if apiErr.Kind != "" {
			return fmt.Errorf("server returned %d (%s): %s", resp.StatusCode, apiErr.Kind, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
