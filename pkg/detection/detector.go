package detection

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/menta2k/exists-in-image/pkg/client"
	"github.com/menta2k/exists-in-image/pkg/types"
)

// ExistsPromptTemplate asks for a bare {"exists": <bool>} answer. %s is the predicate.
const ExistsPromptTemplate = `Is there a %s in the picture? Answer with a simple JSON formatted response with one attribute that is called exists, with only two answer alternatives true and false. Make sure to only write the JSON format, nothing else so that it can directly be parsed as a response in a program, example: '{"exists": true}'.`

// DescribePrompt asks for a free-text description of the image
const DescribePrompt = `What do you see in this image? Describe it briefly.`

// ErrNoExistsField means the answer parsed but carried no boolean "exists"
var ErrNoExistsField = errors.New(`answer has no boolean "exists" field`)

// ExistsPrompt substitutes the predicate verbatim into the instruction
func ExistsPrompt(predicate string) string {
	return fmt.Sprintf(ExistsPromptTemplate, predicate)
}

// Detector asks a vision model yes/no questions about an image
type Detector struct {
	client  client.VisionClient
	lenient bool
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient) *Detector {
	return &Detector{client: client}
}

// SetLenient enables cleanup of fenced or commented model output before parsing
func (d *Detector) SetLenient(lenient bool) {
	d.lenient = lenient
}

// CheckExists sends req with the exists prompt for predicate and maps the
// answer to a verdict. Any failure yields Unknown with the cause attached.
func (d *Detector) CheckExists(ctx context.Context, predicate string, req types.VisionRequest) types.Result {
	req.Prompt = ExistsPrompt(predicate)

	content, err := d.client.Complete(ctx, req)
	if err != nil {
		return types.Result{Verdict: types.Unknown, Err: err}
	}

	exists, err := ParseExists(content, d.lenient)
	if err != nil {
		return types.Result{
			Verdict: types.Unknown,
			Raw:     content,
			Err:     types.NewCheckError(types.ErrKindMalformedAnswer, "parse answer", err),
		}
	}

	verdict := types.NotFound
	if exists {
		verdict = types.Found
	}
	return types.Result{Verdict: verdict, Raw: content}
}

// Query sends req with a custom prompt and returns the raw reply
func (d *Detector) Query(ctx context.Context, prompt string, req types.VisionRequest) (string, error) {
	req.Prompt = prompt
	return d.client.Complete(ctx, req)
}

// Describe asks the model what it sees
func (d *Detector) Describe(ctx context.Context, req types.VisionRequest) (string, error) {
	return d.Query(ctx, DescribePrompt, req)
}

// ParseExists parses the first JSON value of the model's reply and reads the
// boolean "exists" field. Text after that value is ignored. A missing or
// non-boolean field is an error.
func ParseExists(content string, lenient bool) (bool, error) {
	if lenient {
		content = sanitizeModelJSON(content)
	}

	var answer interface{}
	if err := sonic.ConfigDefault.NewDecoder(strings.NewReader(content)).Decode(&answer); err != nil {
		return false, fmt.Errorf("answer is not JSON: %w", err)
	}

	obj, ok := answer.(map[string]interface{})
	if !ok {
		return false, ErrNoExistsField
	}
	exists, ok := obj["exists"].(bool)
	if !ok {
		return false, ErrNoExistsField
	}
	return exists, nil
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`'")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
