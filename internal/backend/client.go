// Package backend is the HTTP client for the external document-chat API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docchat/internal/model"
)

type Client struct {
	baseURL    string
	queryPath  string
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithQueryPath(path string) Option {
	return func(c *Client) {
		if strings.TrimSpace(path) != "" {
			c.queryPath = "/" + strings.TrimLeft(path, "/")
		}
	}
}

// WithRequestTimeout bounds plain JSON calls. The query stream is bounded only
// by the caller's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		queryPath:  "/query/",
		httpClient: &http.Client{},
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type QueryRequest struct {
	model.Target
	UserQuery        string                 `json:"user_query"`
	IntelligenceMode model.IntelligenceMode `json:"intelligence_mode"`
	GroundingMode    model.GroundingMode    `json:"grounding_mode,omitempty"`
}

type GenerateRequest struct {
	model.Target
	OutputType model.OutputType `json:"output_type"`
}

// Query starts a streamed answer. On a non-2xx status the body is decoded into
// an *APIError and no stream is returned. The caller owns the returned body.
func (c *Client) Query(ctx context.Context, token string, in QueryRequest) (io.ReadCloser, error) {
	if !in.Target.Valid() {
		return nil, fmt.Errorf("query target requires exactly one of document_id or session_id")
	}
	if in.IntelligenceMode == "" {
		in.IntelligenceMode = model.DefaultMode
	}

	resp, err := c.do(ctx, http.MethodPost, c.queryPath, token, in)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, decodeAPIError(resp.StatusCode, raw)
	}
	return resp.Body, nil
}

func (c *Client) GetDocument(ctx context.Context, token, documentID string) (model.Document, error) {
	var doc model.Document
	if err := c.doJSON(ctx, http.MethodGet, "/documents/"+url.PathEscape(documentID), token, nil, &doc); err != nil {
		return model.Document{}, err
	}
	if doc.ID == "" {
		doc.ID = documentID
	}
	return doc, nil
}

func (c *Client) ProcessDocument(ctx context.Context, token, documentID string) error {
	return c.doJSON(ctx, http.MethodPost, "/documents/"+url.PathEscape(documentID)+"/process", token, nil, nil)
}

func (c *Client) Generate(ctx context.Context, token string, in GenerateRequest) (model.GeneratedContent, error) {
	if !in.Target.Valid() {
		return model.GeneratedContent{}, fmt.Errorf("generate target requires exactly one of document_id or session_id")
	}
	var out model.GeneratedContent
	if err := c.doJSON(ctx, http.MethodPost, "/generate/", token, in, &out); err != nil {
		return model.GeneratedContent{}, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.do(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read backend response failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse backend json failed: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal backend request failed: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build backend request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	return resp, nil
}
