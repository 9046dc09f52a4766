// Package api provides the HTTP client for the Orbit hosting service.
//
// This package handles all communication with the Orbit backend: manifest
// signing, asset existence queries and uploads, and the development-session
// heartbeat. CLI-facing types use plain strings and small structs rather
// than generated API models.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultBaseURL is the default Orbit API base URL.
	DefaultBaseURL = "https://api.orbit.host"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second
)

// Client is the Orbit API client.
type Client struct {
	baseURL    string
	sessionKey string
	httpClient *http.Client
}

// NewClient creates a new API client using the production base URL.
//
// Parameters:
//   - sessionKey: The session token for authentication; empty means anonymous
//
// Returns:
//   - *Client: A new client instance
func NewClient(sessionKey string) *Client {
	return NewClientWithBaseURL(sessionKey, DefaultBaseURL)
}

// NewClientWithBaseURL creates a new API client with a custom base URL.
//
// Parameters:
//   - sessionKey: The session token for authentication
//   - baseURL: The base URL for the API
//
// Returns:
//   - *Client: A new client instance
func NewClientWithBaseURL(sessionKey, baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		sessionKey: sessionKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// HasSession reports whether the client carries an authenticated session.
//
// Returns:
//   - bool: True if a session token is present
func (c *Client) HasSession() bool {
	return c.sessionKey != ""
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

// Error returns a human-readable error message.
//
// Returns:
//   - string: The error message, with fallback to HTTP status if no message available
func (e *APIError) Error() string {
	if e.Message != "" && e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsAuthorizationError reports whether an error is an API authorization
// failure (HTTP 401/403).
//
// Parameters:
//   - err: The error to inspect
//
// Returns:
//   - bool: True for authorization failures
func IsAuthorizationError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// IsDNSError reports whether an error stems from failed DNS resolution.
//
// Parameters:
//   - err: The error to inspect
//
// Returns:
//   - bool: True when a *net.DNSError is in the chain
func IsDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// doRequest performs an HTTP request with authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.sessionKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "orbit-cli/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// parseResponse parses the response body into the target struct.
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)

		// Try to parse structured error response
		// Supports multiple common error field names
		var errResp struct {
			Error   string `json:"error"`
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		json.Unmarshal(body, &errResp)

		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		detail := errResp.Detail

		// Fallback to raw body if no structured error found
		if message == "" && detail == "" {
			bodyStr := string(body)
			if len(bodyStr) > 200 {
				bodyStr = bodyStr[:200] + "..."
			}
			if bodyStr != "" {
				detail = bodyStr
			}
		}

		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			Detail:     detail,
		}
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// SignManifestRequest is the body of a manifest signing call.
type SignManifestRequest struct {
	// Args carries the identity the manifest is signed for.
	Args SignManifestArgs `json:"args"`

	// Manifest is the manifest document to sign.
	Manifest json.RawMessage `json:"manifest"`
}

// SignManifestArgs identifies the account and package being signed.
type SignManifestArgs struct {
	RemoteUsername    string `json:"remoteUsername"`
	RemotePackageName string `json:"remotePackageName"`
}

// SignManifest requests a signed manifest wrapper from the backend.
//
// Parameters:
//   - ctx: Context for cancellation
//   - req: The signing request
//
// Returns:
//   - string: The signed wrapper document
//   - error: APIError for HTTP failures, or transport errors
func (c *Client) SignManifest(ctx context.Context, req *SignManifestRequest) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/--/api/v2/manifest/sign", req)
	if err != nil {
		return "", err
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := parseResponse(resp, &result); err != nil {
		return "", err
	}
	return result.Response, nil
}

// AssetMetadata describes a single asset's remote state.
type AssetMetadata struct {
	// Exists reports whether the asset is already stored remotely.
	Exists bool `json:"exists"`
}

// AssetsMetadata queries which asset hashes already exist remotely.
//
// All keys are sent in a single batched call.
//
// Parameters:
//   - ctx: Context for cancellation
//   - keys: Content hashes to query
//
// Returns:
//   - map[string]AssetMetadata: Per-key existence metadata
//   - error: APIError for HTTP failures, or transport errors
func (c *Client) AssetsMetadata(ctx context.Context, keys []string) (map[string]AssetMetadata, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/--/api/v2/assets/metadata", map[string][]string{"keys": keys})
	if err != nil {
		return nil, err
	}

	var result struct {
		Metadata map[string]AssetMetadata `json:"metadata"`
	}
	if err := parseResponse(resp, &result); err != nil {
		return nil, err
	}
	return result.Metadata, nil
}

// UploadAsset uploads one asset file as multipart form data.
//
// Parameters:
//   - ctx: Context for cancellation
//   - key: The asset's content hash
//   - path: Local file path to upload
//
// Returns:
//   - error: Any error that occurred during upload
func (c *Client) UploadAsset(ctx context.Context, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open asset %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(key, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to read asset %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/--/api/v2/assets/upload", &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.sessionKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", "orbit-cli/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return parseResponse(resp, nil)
}

// NotifyAliveRequest is the development-session heartbeat payload.
type NotifyAliveRequest struct {
	// URL is the reachable session URL announced to the backend.
	URL string `json:"url"`

	// Platform is "native" or "web".
	Platform string `json:"platform"`

	// Description names the session in the dev tools UI.
	Description string `json:"description"`

	// Source is always "desktop" for CLI sessions.
	Source string `json:"source"`
}

// NotifyAlive re-announces the project's reachability to the backend.
//
// Parameters:
//   - ctx: Context for cancellation
//   - req: The heartbeat payload
//
// Returns:
//   - error: APIError for HTTP failures, or transport errors
func (c *Client) NotifyAlive(ctx context.Context, req *NotifyAliveRequest) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/--/api/v2/development-sessions/notify-alive", req)
	if err != nil {
		return err
	}
	return parseResponse(resp, nil)
}
