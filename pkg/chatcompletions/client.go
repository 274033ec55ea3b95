package chatcompletions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/menta2k/exists-in-image/pkg/types"
)

// DefaultURL is the OpenAI chat completions endpoint
const DefaultURL = "https://api.openai.com/v1/chat/completions"

const contentType = "application/json; charset=utf-8"

// Client talks to an OpenAI-compatible chat completions endpoint with a
// hand-built request body.
type Client struct {
	url        string
	httpClient *http.Client
}

// OpenAI-compatible message format
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// ChatCompletionRequest is the outbound body. Only these three fields are sent.
type ChatCompletionRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

// ChatCompletionResponse is the subset of the reply envelope we read
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// NewClient creates a client for the given endpoint. A nil httpClient gets a
// client without timeout.
func NewClient(url string, httpClient *http.Client) (*Client, error) {
	if url == "" {
		url = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{url: url, httpClient: httpClient}, nil
}

// BuildRequest assembles the single-message, two-part request body
func BuildRequest(req types.VisionRequest) ChatCompletionRequest {
	mime := req.MimeType
	if mime == "" {
		mime = types.DefaultMimeType
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = types.DefaultMaxTokens
	}

	content := []ContentPart{
		{
			Type: "text",
			Text: req.Prompt,
		},
		{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: "data:" + mime + ";base64," + req.ImageB64,
			},
		},
	}

	return ChatCompletionRequest{
		Model: req.Model,
		Messages: []Message{
			{
				Role:    "user",
				Content: content,
			},
		},
		MaxTokens: maxTokens,
	}
}

// Complete posts the request and returns choices[0].message.content
func (c *Client) Complete(ctx context.Context, req types.VisionRequest) (string, error) {
	respBody, err := c.sendRequest(ctx, req.Token, BuildRequest(req))
	if err != nil {
		return "", err
	}
	return ExtractContent(respBody)
}

// ExtractContent reads choices[0].message.content from a raw response body
func ExtractContent(body []byte) (string, error) {
	var resp ChatCompletionResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return "", types.NewCheckError(types.ErrKindMalformedResponse, "parse response", err)
	}

	if len(resp.Choices) == 0 {
		return "", types.NewCheckError(types.ErrKindMalformedResponse, "parse response", fmt.Errorf("no choices in response"))
	}

	// Some compatible servers return content as an array of parts
	switch content := resp.Choices[0].Message.Content.(type) {
	case string:
		return content, nil
	case []interface{}:
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					return text, nil
				}
			}
		}
	}

	return "", types.NewCheckError(types.ErrKindMalformedResponse, "parse response", fmt.Errorf("no text content in response"))
}

func (c *Client) sendRequest(ctx context.Context, token string, payload interface{}) ([]byte, error) {
	jsonData, err := sonic.Marshal(payload)
	if err != nil {
		return nil, types.NewCheckError(types.ErrKindTransport, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, types.NewCheckError(types.ErrKindTransport, "create request", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.NewCheckError(types.ErrKindTransport, "send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewCheckError(types.ErrKindTransport, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, types.NewCheckError(types.ErrKindHTTPStatus, "send request", &types.StatusError{Code: resp.StatusCode, Body: string(body)})
	}

	return body, nil
}
