// Package client talks to a resultblend server.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the server address, e.g. https://localhost:44001.
	BaseURL string
	APIKey  string
	// Header defaults to theapikey.
	Header string
	// Insecure skips TLS certificate verification.
	Insecure bool
	Timeout  time.Duration
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Artifact is a downloaded blend.
type Artifact struct {
	ID     string
	Digest string
	Data   []byte
}

// Client is an HTTP client for the blend API.
type Client struct {
	baseURL string
	apiKey  string
	header  string
	http    *http.Client
}

// New creates a new client.
func New(cfg Config) *Client {
	header := cfg.Header
	if header == "" {
		header = "theapikey"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		//nolint:gosec // opt-in for self-signed development servers
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		header:  header,
		http:    &http.Client{Timeout: timeout, Transport: transport},
	}
}

// Upload stages a document as the upload_file part of a multipart body.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader) error {
	var body bytes.Buffer

	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("upload_file", name)
	if err != nil {
		return fmt.Errorf("creating form file: %w", err)
	}

	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("writing form file: %w", err)
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/blend/upload/"+url.PathEscape(name), &body, mw.FormDataContentType())
	if err != nil {
		return err
	}

	resp.Body.Close()

	return nil
}

// List returns the staged document names.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/blend/list", nil, "")
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return names, nil
}

// Blend drains the server's staging store and downloads the spreadsheet.
func (c *Client) Blend(ctx context.Context) (*Artifact, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/blend/blend", nil, "")
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &Artifact{
		ID:     resp.Header.Get("X-Blend-Id"),
		Digest: resp.Header.Get("X-Artifact-Digest"),
		Data:   data,
	}, nil
}

// Convert renders one document as text on the server.
func (c *Client) Convert(ctx context.Context, document string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/blend/xml", strings.NewReader(document), "application/xml")
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	return string(data), nil
}

// do sends an authenticated request and turns error statuses into *APIError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if c.apiKey != "" {
		req.Header.Set(c.header, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errResp struct {
		Error string `json:"error"`
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
		apiErr.Message = errResp.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	return nil, apiErr
}
