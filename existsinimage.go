// Package existsinimage asks a multimodal chat completion API whether a named
// object appears in an image.
//
// Basic usage:
//
//	checker := existsinimage.New()
//	if checker.Check("bike", "/home/me/surprise.jpg") {
//		fmt.Println("Does the image contain a bike? yes.")
//	}
//
// Each check reads the bearer token (by default from ~/openapi.key), base64
// encodes the image, sends one chat completion request that embeds the image
// as a data:image/jpeg URL next to the question, and parses the model's reply
// as {"exists": <bool>}.
//
// Check collapses every failure to false. Evaluate returns a tagged result
// that separates a confirmed "no" (NotFound) from "could not determine"
// (Unknown, with the cause in Result.Err). Failures are logged either way.
//
// Backends (pkg/chatcompletions, pkg/openai, pkg/ollama) all implement
// client.VisionClient and can be selected through the configuration.
package existsinimage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/exists-in-image/internal/config"
	"github.com/menta2k/exists-in-image/internal/logging"
	"github.com/menta2k/exists-in-image/internal/utils"
	"github.com/menta2k/exists-in-image/pkg/chatcompletions"
	"github.com/menta2k/exists-in-image/pkg/client"
	"github.com/menta2k/exists-in-image/pkg/credential"
	"github.com/menta2k/exists-in-image/pkg/detection"
	"github.com/menta2k/exists-in-image/pkg/ollama"
	"github.com/menta2k/exists-in-image/pkg/openai"
	"github.com/menta2k/exists-in-image/pkg/processing"
	"github.com/menta2k/exists-in-image/pkg/types"
)

// Version of the library
const Version = "1.0.0"

// DefaultModel is the model asked when none is configured
const DefaultModel = config.DefaultModel

// Checker answers "is there a <predicate> in this image?"
type Checker struct {
	apiURL     string
	timeout    time.Duration
	httpClient *http.Client
	client     client.VisionClient
	detector   *detection.Detector
	processor  *processing.Processor
	credential credential.Source
	model      string
	maxTokens  int
	lenient    bool
	logger     *logging.Logger
}

// Option customizes a Checker created with New
type Option func(*Checker)

// WithAPIURL points the default backend at another chat completions endpoint
func WithAPIURL(url string) Option {
	return func(c *Checker) { c.apiURL = url }
}

// WithTimeout bounds each request; zero means no timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// WithHTTPClient sets the HTTP client the backend sends requests with
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Checker) { c.httpClient = hc }
}

// WithClient replaces the backend
func WithClient(vc client.VisionClient) Option {
	return func(c *Checker) { c.client = vc }
}

// WithModel sets the model id
func WithModel(model string) Option {
	return func(c *Checker) { c.model = model }
}

// WithMaxTokens caps the reply length
func WithMaxTokens(n int) Option {
	return func(c *Checker) { c.maxTokens = n }
}

// WithCredential sets where the bearer token is read from
func WithCredential(src credential.Source) Option {
	return func(c *Checker) { c.credential = src }
}

// WithProcessor sets how image files become payloads
func WithProcessor(p *processing.Processor) Option {
	return func(c *Checker) { c.processor = p }
}

// WithLenient tolerates fenced or commented JSON answers
func WithLenient(lenient bool) Option {
	return func(c *Checker) { c.lenient = lenient }
}

// WithLogger sets the diagnostics logger
func WithLogger(l *logging.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// New creates a Checker with default configuration: the OpenAI chat
// completions endpoint, gpt-4o, 300 max tokens and ~/openapi.key.
func New(opts ...Option) *Checker {
	c := &Checker{
		apiURL:     chatcompletions.DefaultURL,
		processor:  processing.NewProcessor(),
		credential: credential.FileSource{Path: credential.DefaultPath()},
		model:      DefaultModel,
		maxTokens:  types.DefaultMaxTokens,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		hc := c.httpClient
		if hc == nil {
			hc = &http.Client{Timeout: c.timeout}
		}
		// chatcompletions.NewClient does not fail
		c.client, _ = chatcompletions.NewClient(c.apiURL, hc)
	}
	c.detector = detection.NewDetector(c.client)
	c.detector.SetLenient(c.lenient)
	return c
}

// NewWithConfig creates a Checker from a validated configuration. Options
// are applied after the configured ones.
func NewWithConfig(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Checker, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var base Checker
	for _, opt := range opts {
		opt(&base)
	}
	hc := base.httpClient
	if hc == nil {
		timeout, _ := cfg.TimeoutDuration()
		hc = &http.Client{Timeout: timeout}
	}
	vc, err := NewVisionClient(cfg.API.Backend, cfg.API.URL, hc)
	if err != nil {
		return nil, err
	}

	var src credential.Source = credential.FileSource{
		Path: utils.ExpandHome(cfg.Credential.Path),
		Raw:  cfg.Credential.Raw,
	}
	if cfg.Credential.Env != "" {
		src = credential.EnvSource{Name: cfg.Credential.Env}
	}

	processor := processing.NewProcessorWithOptions(processing.Options{
		MaxDimension:    cfg.Image.MaxDimension,
		Quality:         cfg.Image.Quality,
		ReencodeNonJPEG: cfg.Image.ReencodeNonJPEG,
	})

	if logger == nil {
		logger = logging.Default()
	}
	logger.SetDebug(cfg.Log.Debug)

	return New(append([]Option{
		WithClient(vc),
		WithModel(cfg.API.Model),
		WithMaxTokens(cfg.API.MaxTokens),
		WithCredential(src),
		WithProcessor(processor),
		WithLenient(cfg.Detection.Lenient),
		WithLogger(logger),
	}, opts...)...), nil
}

// NewVisionClient creates the backend named by backend
func NewVisionClient(backend, apiURL string, httpClient *http.Client) (client.VisionClient, error) {
	switch backend {
	case config.BackendChatCompletions, "":
		return chatcompletions.NewClient(apiURL, httpClient)
	case config.BackendOpenAI:
		return openai.NewClient(apiURL, httpClient)
	case config.BackendOllama:
		c, err := ollama.NewClient(apiURL, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
}

// Check reports whether predicate is visible in the image at imagePath.
// Every failure yields false and is logged.
func (c *Checker) Check(predicate, imagePath string) bool {
	return c.CheckContext(context.Background(), predicate, imagePath)
}

// CheckContext is Check with a caller-supplied context
func (c *Checker) CheckContext(ctx context.Context, predicate, imagePath string) bool {
	return c.Evaluate(ctx, predicate, imagePath).Exists()
}

// Evaluate runs one check and returns the tagged result
func (c *Checker) Evaluate(ctx context.Context, predicate, imagePath string) types.Result {
	id := uuid.New().String()
	c.logger.Debug("check %s: predicate=%q image=%s model=%s", id, predicate, imagePath, c.model)

	req, err := c.prepare(imagePath)
	if err != nil {
		return c.fail(types.Result{ID: id, Verdict: types.Unknown, Err: err})
	}

	result := c.detector.CheckExists(ctx, predicate, req)
	result.ID = id
	if result.Err != nil {
		return c.fail(result)
	}

	c.logger.Debug("check %s: %s", id, result.Verdict)
	return result
}

// Query sends an arbitrary prompt with the image and returns the raw reply
func (c *Checker) Query(ctx context.Context, prompt, imagePath string) (string, error) {
	req, err := c.prepare(imagePath)
	if err != nil {
		return "", err
	}
	return c.detector.Query(ctx, prompt, req)
}

// prepare loads the credential and the image for one request
func (c *Checker) prepare(imagePath string) (types.VisionRequest, error) {
	token, err := c.credential.Token()
	if err != nil {
		return types.VisionRequest{}, types.NewCheckError(types.ErrKindCredential, "load credential", err)
	}

	payload, err := c.processor.LoadPayload(imagePath)
	if err != nil {
		return types.VisionRequest{}, types.NewCheckError(types.ErrKindImage, "load image", err)
	}
	if payload.Detected != payload.MimeType && !payload.Reencoded {
		c.logger.Warn("image %s is %s but is sent as %s", imagePath, payload.Detected, payload.MimeType)
	}
	c.logger.Debug("image %s: %s, sent as %s", imagePath,
		utils.FormatFileSize(int64(len(payload.Data))), payload.MimeType)

	return types.VisionRequest{
		Model:     c.model,
		ImageB64:  payload.Base64,
		MimeType:  payload.MimeType,
		MaxTokens: c.maxTokens,
		Token:     token,
	}, nil
}

func (c *Checker) fail(result types.Result) types.Result {
	c.logger.Error("check %s failed (%s): %v", result.ID, types.KindOf(result.Err), result.Err)
	if result.Raw != "" {
		c.logger.Debug("check %s raw reply: %q", result.ID, result.Raw)
	}
	return result
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// ExistsPrompt returns the question sent for predicate
func ExistsPrompt(predicate string) string {
	return detection.ExistsPrompt(predicate)
}
