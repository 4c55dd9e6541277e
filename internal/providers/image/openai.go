package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"breedstudio/internal/domain"
)

const (
	DefaultModel   = "gpt-image-1"
	DefaultSize    = "1024x1024"
	defaultBaseURL = "https://api.openai.com/v1"

	openAIDefaultTimeout = 3 * time.Minute
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	Size         string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
}

// OpenAIEditor calls the images/edits endpoint with a single reference image.
// A go-openai client is built per call because the credential can change
// between requests.
type OpenAIEditor struct {
	apiKey       string
	model        string
	size         string
	baseURL      string
	organization string
	httpClient   *http.Client
}

func NewOpenAIEditor(opts OpenAIOptions) *OpenAIEditor {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	size := strings.TrimSpace(opts.Size)
	if size == "" {
		size = DefaultSize
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIEditor{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		size:         size,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		httpClient:   client,
	}
}

func (o *OpenAIEditor) Model() string { return o.model }

// referenceFile gives the multipart image part a filename and content type;
// without them the upload is sent as application/octet-stream.
type referenceFile struct {
	*bytes.Reader
	name        string
	contentType string
}

func (f *referenceFile) Name() string        { return f.name }
func (f *referenceFile) ContentType() string { return f.contentType }

// Edit sends the reference image and prompt and decodes the single result.
func (o *OpenAIEditor) Edit(ctx context.Context, req EditRequest) (*Asset, error) {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = o.apiKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("image: api key is required: %w", domain.ErrInvalidInput)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("image: prompt is required: %w", domain.ErrInvalidInput)
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("image: reference image is required: %w", domain.ErrInvalidInput)
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = o.baseURL
	cfg.OrgID = o.organization
	cfg.HTTPClient = o.httpClient

	size := strings.TrimSpace(req.Size)
	if size == "" {
		size = o.size
	}
	resp, err := openai.NewClientWithConfig(cfg).CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          newReferenceFile(req),
		Prompt:         prompt,
		Model:          o.model,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Data) == 0 || strings.TrimSpace(resp.Data[0].B64JSON) == "" {
		return nil, &ProviderError{Code: CodeUpstream, Status: http.StatusOK, Message: "no image data received", kind: domain.ErrProviderFailure}
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &ProviderError{Code: CodeUpstream, Status: http.StatusOK, Message: "invalid image payload", kind: domain.ErrProviderFailure}
	}
	return &Asset{Data: data, Format: "image/png"}, nil
}

func newReferenceFile(req EditRequest) *referenceFile {
	mime := strings.ToLower(strings.TrimSpace(req.MIME))
	if mime == "" {
		mime = "image/png"
	}
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		name = "reference" + extensionFor(mime)
	}
	return &referenceFile{Reader: bytes.NewReader(req.Image), name: name, contentType: mime}
}

// classifyError maps go-openai failures onto ProviderError.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ClassifyMessage(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ClassifyMessage(reqErr.HTTPStatusCode, "")
	}
	return &ProviderError{Code: CodeUpstream, Message: err.Error(), kind: domain.ErrProviderFailure}
}

func extensionFor(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

var _ Editor = (*OpenAIEditor)(nil)
