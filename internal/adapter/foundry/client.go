// Package foundry implements the authenticated HTTP client for the remote
// agent service (Azure AI Foundry project API), plus the response parsers
// and structured-output schemas used by the pipeline.
package foundry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	backoff "github.com/cenkalti/backoff/v4"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/observability"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/config"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
)

// TokenAudience is the fixed audience for bearer tokens.
const TokenAudience = "https://ai.azure.com"

const maxAttempts = 6

// APIError carries a non-retryable upstream status back to the caller.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agent api status %d: %s", e.Status, snippet(e.Body, 256))
}

// Unwrap lets callers classify via errors.Is.
func (e *APIError) Unwrap() error { return domain.ErrUpstreamStatus }

// Client is the remote agent service client.
type Client struct {
	base       string
	apiVersion string
	model      string
	hc         *http.Client
	cred       azcore.TokenCredential

	tokenMu sync.Mutex
	token   azcore.AccessToken
}

// New constructs a client from configuration and a credential.
func New(cfg config.Config, cred azcore.TokenCredential) *Client {
	return &Client{
		base:       strings.TrimRight(cfg.FoundryProjectEndpoint, "/"),
		apiVersion: cfg.FoundryAPIVersion,
		model:      cfg.ModelDeploymentName,
		hc:         &http.Client{Timeout: cfg.FoundryHTTPTimeout()},
		cred:       cred,
	}
}

// Model returns the configured deployment name embedded in response requests.
func (c *Client) Model() string { return c.model }

// buildURL composes base+rel tolerating a base that already ends in the
// "openai" segment, and appends api-version when missing.
func (c *Client) buildURL(rel string) string {
	base := c.base
	if strings.HasSuffix(base, "/openai") && strings.HasPrefix(rel, "openai/") {
		rel = strings.TrimPrefix(rel, "openai/")
	}
	full := base + "/" + rel
	u, err := url.Parse(full)
	if err != nil {
		return full
	}
	q := u.Query()
	if q.Get("api-version") == "" {
		q.Set("api-version", c.apiVersion)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// bearer returns a cached token, refreshing when it expires within a minute.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token.Token != "" && time.Until(c.token.ExpiresOn) > time.Minute {
		return c.token.Token, nil
	}
	tk, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{TokenAudience + "/.default"}})
	if err != nil {
		return "", fmt.Errorf("op=foundry.bearer: %w", err)
	}
	c.token = tk
	return tk.Token, nil
}

// retryPolicy implements backoff.BackOff per the client retry contract:
// 500 ms initial delay doubling per attempt, uniform jitter in [d, 1.2d],
// replaced by an upstream Retry-After delta when one was observed.
type retryPolicy struct {
	next       time.Duration
	retryAfter time.Duration
}

func (p *retryPolicy) Reset() { p.next = 500 * time.Millisecond; p.retryAfter = 0 }

func (p *retryPolicy) NextBackOff() time.Duration {
	d := p.next
	p.next *= 2
	if p.retryAfter > 0 {
		d = p.retryAfter
		p.retryAfter = 0
		return d
	}
	return d + time.Duration(rand.Float64()*0.2*float64(d)) //nolint:gosec // jitter only
}

// doJSON performs an authenticated JSON request with retry on transport
// errors, 429, and 5xx. Other statuses surface as *APIError untouched.
func (c *Client) doJSON(ctx context.Context, method, rel string, reqBody any, out any, operation string) error {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("op=foundry.%s: %w", operation, err)
		}
		payload = b
	}
	return c.doRaw(ctx, method, rel, "application/json", func() io.Reader {
		if payload == nil {
			return nil
		}
		return bytes.NewReader(payload)
	}, out, operation)
}

func (c *Client) doRaw(ctx context.Context, method, rel, contentType string, body func() io.Reader, out any, operation string) error {
	endpoint := c.buildURL(rel)
	pol := &retryPolicy{}
	pol.Reset()
	op := func() error {
		start := time.Now()
		var rd io.Reader
		if body != nil {
			rd = body()
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		tok, err := c.bearer(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		if rd != nil {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := c.hc.Do(req)
		observability.ObserveAgentRequest(operation, time.Since(start))
		if err != nil {
			slog.Warn("agent api transport error", slog.String("operation", operation), slog.Any("error", err))
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil && secs > 0 {
					pol.retryAfter = time.Duration(secs) * time.Second
				}
			}
			slog.Warn("agent api retryable status",
				slog.String("operation", operation),
				slog.Int("status", resp.StatusCode),
				slog.String("body", snippet(string(respBody), 256)))
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Warn("agent api non-retryable status",
				slog.String("operation", operation),
				slog.Int("status", resp.StatusCode),
				slog.String("body", snippet(string(respBody), 512)))
			return backoff.Permanent(&APIError{Status: resp.StatusCode, Body: string(respBody)})
		}
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return backoff.Permanent(fmt.Errorf("op=foundry.%s decode: %w", operation, err))
			}
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(pol, maxAttempts-1), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return fmt.Errorf("op=foundry.%s: %w", operation, err)
	}
	return nil
}

// CreateResponse invokes the model through the responses endpoint and
// returns the raw response envelope.
func (c *Client) CreateResponse(ctx context.Context, req ResponseRequest) (json.RawMessage, error) {
	body := map[string]any{
		"model": c.model,
		"input": req.Input,
	}
	if req.AgentID != "" {
		body["agent"] = map[string]any{"type": "agent_reference", "id": req.AgentID}
	}
	if req.SchemaName != "" && len(req.Schema) > 0 {
		body["text"] = map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   req.SchemaName,
				"strict": true,
				"schema": req.Schema,
			},
		}
	}
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "openai/responses", body, &out, "create_response"); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAgentsByName returns existing agent ids keyed by lower-cased name.
// Both envelope ({"data": [...]}) and bare-array response shapes are
// tolerated; items missing an id or a name are skipped.
func (c *Client) ListAgentsByName(ctx context.Context) (map[string]string, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "openai/assistants?limit=100", nil, &raw, "list_agents"); err != nil {
		return nil, err
	}
	items, err := decodeListItems(raw)
	if err != nil {
		return nil, fmt.Errorf("op=foundry.list_agents: %w", err)
	}
	agents := make(map[string]string, len(items))
	for _, it := range items {
		id, _ := it["id"].(string)
		if id == "" {
			continue
		}
		name, _ := it["name"].(string)
		if name == "" {
			if def, ok := it["definition"].(map[string]any); ok {
				name, _ = def["name"].(string)
			}
		}
		if name == "" {
			continue
		}
		agents[strings.ToLower(name)] = id
	}
	return agents, nil
}

func decodeListItems(raw json.RawMessage) ([]map[string]any, error) {
	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}
	var bare []map[string]any
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

// AgentTool describes a tool bound to an agent definition.
type AgentTool struct {
	Type           string   `json:"type"`
	VectorStoreIDs []string `json:"vector_store_ids,omitempty"`
}

// AgentDefinition is the canonical remote agent shape: a name plus a
// prompt-kind definition carrying model, instructions, and tools.
type AgentDefinition struct {
	Name         string
	Model        string
	Instructions string
	Tools        []AgentTool
}

func (d AgentDefinition) body() map[string]any {
	tools := d.Tools
	if tools == nil {
		tools = []AgentTool{}
	}
	return map[string]any{
		"name": d.Name,
		"definition": map[string]any{
			"kind":         "prompt",
			"model":        d.Model,
			"instructions": d.Instructions,
			"tools":        tools,
		},
	}
}

// CreateAgent creates a remote agent and returns its id.
func (c *Client) CreateAgent(ctx context.Context, def AgentDefinition) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "openai/assistants", def.body(), &out, "create_agent"); err != nil {
		return "", err
	}
	return out.ID, nil
}

// UpdateAgent overwrites an existing agent with the canonical definition.
func (c *Client) UpdateAgent(ctx context.Context, id string, def AgentDefinition) error {
	return c.doJSON(ctx, http.MethodPost, "openai/assistants/"+url.PathEscape(id), def.body(), nil, "update_agent")
}

// UploadFile uploads a seed file for vector-store ingestion and returns its id.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("op=foundry.upload_file: %w", err)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return "", fmt.Errorf("op=foundry.upload_file: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("op=foundry.upload_file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("op=foundry.upload_file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("op=foundry.upload_file: %w", err)
	}
	payload := buf.Bytes()
	var out struct {
		ID string `json:"id"`
	}
	err = c.doRaw(ctx, http.MethodPost, "openai/files", mw.FormDataContentType(), func() io.Reader {
		return bytes.NewReader(payload)
	}, &out, "upload_file")
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateVectorStore creates a vector store over the given file ids.
func (c *Client) CreateVectorStore(ctx context.Context, name string, fileIDs []string) (string, error) {
	body := map[string]any{"name": name, "file_ids": fileIDs}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "openai/vector_stores", body, &out, "create_vector_store"); err != nil {
		return "", err
	}
	return out.ID, nil
}

// WaitVectorStoreReady polls the vector store at 2-second intervals until its
// status reports "completed" or the timeout elapses.
func (c *Client) WaitVectorStoreReady(ctx context.Context, id string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var out struct {
			Status string `json:"status"`
		}
		err := c.doJSON(ctx, http.MethodGet, "openai/vector_stores/"+url.PathEscape(id), nil, &out, "get_vector_store")
		if err != nil {
			return err
		}
		switch out.Status {
		case "completed":
			return nil
		case "failed", "expired":
			return fmt.Errorf("%w: vector store %s status %q", domain.ErrUpstreamStatus, id, out.Status)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("vector store %s not ready after %s", id, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func snippet(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
