// Package foundry provides the HTTP client for the external agent platform:
// conversation handles, synchronous agent responses, and streamed workflow
// responses over SSE.
package foundry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Platform is the surface of the agent platform the gateway consumes.
type Platform interface {
	// CreateConversation creates a fresh conversation context handle.
	CreateConversation(ctx context.Context) (string, error)

	// CreateResponse runs an agent to completion and returns its output text.
	CreateResponse(ctx context.Context, agent, conversationID, input string) (string, error)

	// StreamResponse runs an agent with streaming enabled. The handler is
	// called for each stream event in arrival order.
	StreamResponse(ctx context.Context, agent, conversationID, input string, handler StreamHandler) error

	// DeleteConversationItem removes a single item from a conversation.
	DeleteConversationItem(ctx context.Context, conversationID, itemID string) error

	// AddConversationItem appends a message item to a conversation.
	AddConversationItem(ctx context.Context, conversationID, role, content string) error
}

// StreamHandler is called for each SSE event from a streamed response.
type StreamHandler func(event *StreamEvent) error

// Client is the HTTP client for the agent platform.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Ensure Client implements the Platform interface.
var _ Platform = (*Client)(nil)

// NewClient creates a new platform client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type conversationResponse struct {
	ID string `json:"id"`
}

type responseRequest struct {
	Agent        string `json:"agent"`
	Conversation string `json:"conversation"`
	Input        string `json:"input"`
	Stream       bool   `json:"stream,omitempty"`
}

type responseResult struct {
	OutputText string `json:"output_text"`
}

type conversationItemsRequest struct {
	Items []conversationItem `json:"items"`
}

type conversationItem struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateConversation creates a new conversation and returns its ID.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/conversations", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", newAPIError(resp.StatusCode, body)
	}

	var conv conversationResponse
	if err := json.Unmarshal(body, &conv); err != nil {
		return "", fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	if conv.ID == "" {
		return "", fmt.Errorf("platform returned empty conversation id")
	}
	return conv.ID, nil
}

// CreateResponse runs an agent synchronously and returns its output text.
func (c *Client) CreateResponse(ctx context.Context, agent, conversationID, input string) (string, error) {
	reqBody := responseRequest{
		Agent:        agent,
		Conversation: conversationID,
		Input:        input,
	}
	resp, err := c.do(ctx, http.MethodPost, "/responses", reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", newAPIError(resp.StatusCode, body)
	}

	var result responseResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result.OutputText, nil
}

// StreamResponse runs an agent with streaming and feeds SSE events to the
// handler. The stream ends at EOF or a "data: [DONE]" marker.
func (c *Client) StreamResponse(ctx context.Context, agent, conversationID, input string, handler StreamHandler) error {
	reqBody := responseRequest{
		Agent:        agent,
		Conversation: conversationID,
		Input:        input,
		Stream:       true,
	}
	resp, err := c.do(ctx, http.MethodPost, "/responses", reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, body)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			// Skip malformed frames
			continue
		}
		if err := handler(&event); err != nil {
			return err
		}
	}
}

// DeleteConversationItem deletes one item from a conversation.
func (c *Client) DeleteConversationItem(ctx context.Context, conversationID, itemID string) error {
	path := fmt.Sprintf("/conversations/%s/items/%s", conversationID, itemID)
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, body)
	}
	return nil
}

// AddConversationItem appends a message item to a conversation.
func (c *Client) AddConversationItem(ctx context.Context, conversationID, role, content string) error {
	reqBody := conversationItemsRequest{
		Items: []conversationItem{{Type: "message", Role: role, Content: content}},
	}
	path := fmt.Sprintf("/conversations/%s/items", conversationID)
	resp, err := c.do(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, body)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}
