package chatcompletions

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/menta2k/exists-in-image/pkg/types"
)

// newTestServer returns a server that records the last request body and
// answers with the given status and body.
func newTestServer(t *testing.T, status int, reply string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			captured.method = r.Method
			captured.auth = r.Header.Get("Authorization")
			captured.contentType = r.Header.Get("Content-Type")
			captured.body = body
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type capturedRequest struct {
	method      string
	auth        string
	contentType string
	body        []byte
}

func testRequest() types.VisionRequest {
	return types.VisionRequest{
		Model:    "gpt-4o",
		Prompt:   "Is there a bike in the picture?",
		ImageB64: base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff, 0x00, 0x01}),
		Token:    "sk-test",
	}
}

func TestBuildRequestShape(t *testing.T) {
	body, err := sonic.Marshal(BuildRequest(testRequest()))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var payload map[string]interface{}
	if err := sonic.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if len(payload) != 3 {
		t.Errorf("Expected 3 top-level fields, got %d: %v", len(payload), payload)
	}
	if payload["model"] != "gpt-4o" {
		t.Errorf("Expected model gpt-4o, got %v", payload["model"])
	}
	if payload["max_tokens"] != float64(300) {
		t.Errorf("Expected max_tokens 300, got %v", payload["max_tokens"])
	}

	messages, ok := payload["messages"].([]interface{})
	if !ok || len(messages) != 1 {
		t.Fatalf("Expected exactly one message, got %v", payload["messages"])
	}
	msg := messages[0].(map[string]interface{})
	if msg["role"] != "user" {
		t.Errorf("Expected role user, got %v", msg["role"])
	}

	parts, ok := msg["content"].([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected exactly two content parts, got %v", msg["content"])
	}
	text := parts[0].(map[string]interface{})
	if text["type"] != "text" || text["text"] != "Is there a bike in the picture?" {
		t.Errorf("Unexpected text part: %v", text)
	}
	if _, has := text["image_url"]; has {
		t.Error("text part must not carry image_url")
	}
	img := parts[1].(map[string]interface{})
	if img["type"] != "image_url" {
		t.Errorf("Expected image_url part second, got %v", img["type"])
	}
	if _, has := img["text"]; has {
		t.Error("image part must not carry text")
	}
	url := img["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("Unexpected data URL: %s", url)
	}
}

func TestBuildRequestRoundTripsImageBytes(t *testing.T) {
	original := []byte("\x00\x01\x02binary\xff\xfe")
	req := testRequest()
	req.ImageB64 = base64.StdEncoding.EncodeToString(original)

	body, err := sonic.Marshal(BuildRequest(req))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded ChatCompletionRequest
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	parts := decoded.Messages[0].Content.([]interface{})
	url := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})["url"].(string)

	got, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/jpeg;base64,"))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(got) != string(original) {
		t.Errorf("Expected %x, got %x", original, got)
	}
}

func TestBuildRequestEscapesPredicate(t *testing.T) {
	req := testRequest()
	req.Prompt = `Is there a "red" \bike\ in the picture?`

	body, err := sonic.Marshal(BuildRequest(req))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded ChatCompletionRequest
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	parts := decoded.Messages[0].Content.([]interface{})
	if got := parts[0].(map[string]interface{})["text"]; got != req.Prompt {
		t.Errorf("Expected prompt %q, got %q", req.Prompt, got)
	}
}

func TestCompleteSendsHeaders(t *testing.T) {
	var captured capturedRequest
	srv := newTestServer(t, http.StatusOK, `{"choices":[{"message":{"content":"{\"exists\": true}"}}]}`, &captured)

	c, _ := NewClient(srv.URL, nil)
	content, err := c.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if content != `{"exists": true}` {
		t.Errorf("Unexpected content %q", content)
	}
	if captured.method != http.MethodPost {
		t.Errorf("Expected POST, got %s", captured.method)
	}
	if captured.auth != "Bearer sk-test" {
		t.Errorf("Unexpected Authorization header %q", captured.auth)
	}
	if captured.contentType != "application/json; charset=utf-8" {
		t.Errorf("Unexpected Content-Type %q", captured.contentType)
	}
	if len(captured.body) == 0 {
		t.Error("Expected a request body")
	}
}

func TestCompleteNonSuccessStatus(t *testing.T) {
	srv := newTestServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, nil)

	c, _ := NewClient(srv.URL, nil)
	_, err := c.Complete(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected an error for 401")
	}
	if kind := types.KindOf(err); kind != types.ErrKindHTTPStatus {
		t.Errorf("Expected kind %s, got %s", types.ErrKindHTTPStatus, kind)
	}
	var se *types.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("Expected StatusError with 401, got %v", err)
	}
}

func TestCompleteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := NewClient(url, nil)
	_, err := c.Complete(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected an error for a closed server")
	}
	if kind := types.KindOf(err); kind != types.ErrKindTransport {
		t.Errorf("Expected kind %s, got %s", types.ErrKindTransport, kind)
	}
}

func TestExtractContent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"string content", `{"choices":[{"message":{"content":"hello"}}]}`, "hello", false},
		{"parts content", `{"choices":[{"message":{"content":[{"type":"text","text":"hi"}]}}]}`, "hi", false},
		{"missing choices", `{"id":"x"}`, "", true},
		{"empty choices", `{"choices":[]}`, "", true},
		{"choices not array", `{"choices":{"message":{"content":"x"}}}`, "", true},
		{"missing content", `{"choices":[{"message":{"role":"assistant"}}]}`, "", true},
		{"not json", `<html>oops</html>`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractContent([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %q", got)
				}
				if kind := types.KindOf(err); kind != types.ErrKindMalformedResponse {
					t.Errorf("Expected kind %s, got %s", types.ErrKindMalformedResponse, kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
