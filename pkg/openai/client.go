package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/menta2k/exists-in-image/pkg/types"
)

// Client sends vision requests through the go-openai SDK. The SDK client is
// built per call because the bearer token is loaded per call.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. apiURL may be the full chat completions
// endpoint or the API base URL.
func NewClient(apiURL string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    BaseURL(apiURL),
		httpClient: httpClient,
	}, nil
}

// BaseURL strips the /chat/completions suffix the SDK appends itself
func BaseURL(apiURL string) string {
	if apiURL == "" {
		return ""
	}
	base := strings.TrimSuffix(apiURL, "/")
	return strings.TrimSuffix(base, "/chat/completions")
}

// Complete sends one user message with a text and an image part
func (c *Client) Complete(ctx context.Context, req types.VisionRequest) (string, error) {
	clientConfig := goopenai.DefaultConfig(req.Token)
	if c.baseURL != "" {
		clientConfig.BaseURL = c.baseURL
	}
	clientConfig.HTTPClient = c.httpClient
	sdk := goopenai.NewClientWithConfig(clientConfig)

	mime := req.MimeType
	if mime == "" {
		mime = types.DefaultMimeType
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = types.DefaultMaxTokens
	}

	resp, err := sdk.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{
						Type: goopenai.ChatMessagePartTypeText,
						Text: req.Prompt,
					},
					{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL: fmt.Sprintf("data:%s;base64,%s", mime, req.ImageB64),
						},
					},
				},
			},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", types.NewCheckError(types.ErrKindMalformedResponse, "parse response", fmt.Errorf("no choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return types.NewCheckError(types.ErrKindHTTPStatus, "create chat completion",
			&types.StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message})
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return types.NewCheckError(types.ErrKindHTTPStatus, "create chat completion",
			&types.StatusError{Code: reqErr.HTTPStatusCode, Body: string(reqErr.Body)})
	}
	return types.NewCheckError(types.ErrKindTransport, "create chat completion", err)
}
