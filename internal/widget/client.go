package widget

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

	"chatdesk-backend/internal/dto"
)

const sessionHeader = "X-Session-Token"

// APIError is a non-2xx answer from the widget API.
type APIError struct {
	StatusCode      int
	Message         string
	MissingFieldIDs []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("widget api: %d %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// apiClient speaks the /api/widget/v1 contract.
type apiClient struct {
	baseURL string
	origin  string
	http    *http.Client
}

func newAPIClient(baseURL, origin string, httpClient *http.Client) *apiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/widget/v1",
		origin:  origin,
		http:    httpClient,
	}
}

func (c *apiClient) Init(ctx context.Context, req dto.SessionInitRequest) (dto.SessionInitResponse, error) {
	var resp dto.SessionInitResponse
	err := c.do(ctx, http.MethodPost, "/init", "", req, &resp)
	return resp, err
}

func (c *apiClient) Departments(ctx context.Context, token string) ([]dto.Department, error) {
	var resp dto.DepartmentsResponse
	if err := c.do(ctx, http.MethodGet, "/departments", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Departments, nil
}

func (c *apiClient) StartConversation(ctx context.Context, token string, req dto.CreateConversationRequest) (dto.ConversationResponse, error) {
	var resp dto.ConversationResponse
	err := c.do(ctx, http.MethodPost, "/conversations", token, req, &resp)
	return resp, err
}

func (c *apiClient) Conversation(ctx context.Context, token, conversationID string) (dto.ConversationResponse, error) {
	var resp dto.ConversationResponse
	err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID), token, nil, &resp)
	return resp, err
}

func (c *apiClient) Messages(ctx context.Context, token, conversationID string) ([]dto.Message, error) {
	var resp dto.ListMessagesResponse
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *apiClient) SendMessage(ctx context.Context, token, conversationID string, req dto.SendMessageRequest) (dto.Message, error) {
	var resp dto.MessageResponse
	err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", token, req, &resp)
	return resp.Message, err
}

func (c *apiClient) SetTyping(ctx context.Context, token, conversationID string, isTyping bool) error {
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/typing", token, dto.TypingRequest{IsTyping: &isTyping}, nil)
}

func (c *apiClient) Typing(ctx context.Context, token, conversationID string) ([]dto.TypingIndicator, error) {
	var resp dto.TypingResponse
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/typing", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Typing, nil
}

func (c *apiClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	if token != "" {
		req.Header.Set(sessionHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody dto.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errBody)
		if errBody.Message == "" {
			errBody.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errBody.Message, MissingFieldIDs: errBody.MissingFieldIDs}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
