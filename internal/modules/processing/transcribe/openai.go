package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
)

const defaultModel = "whisper-1"

// verboseTranscription is the verbose_json body of /audio/transcriptions.
type verboseTranscription struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// OpenAIBackend calls the OpenAI speech-to-text endpoint (or any compatible one).
type OpenAIBackend struct {
	client openaiclient.Client
	model  string
}

func NewOpenAIBackend(apiKey, endpoint, model string) *OpenAIBackend {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(strings.TrimSpace(apiKey)),
		openaioption.WithMaxRetries(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(endpoint), "/"); base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}
	return &OpenAIBackend{
		client: openaiclient.NewClient(opts...),
		model:  model,
	}
}

func (b *OpenAIBackend) Transcribe(ctx context.Context, req Request) (Result, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return Result{}, &Error{Kind: KindStaging, Err: err}
	}
	defer f.Close()

	// The multipart encoder takes the upload filename from f.Name(), which
	// is what the endpoint dispatches on.
	params := openaiclient.AudioTranscriptionNewParams{
		File:                   f,
		Model:                  openaiclient.AudioModel(b.model),
		ResponseFormat:         openaiclient.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if req.Language != "" {
		params.Language = openaiclient.String(req.Language)
	}

	// Post decodes the verbose body directly so segments are not lost to the
	// typed Transcription response.
	var out verboseTranscription
	if err := b.client.Post(ctx, "audio/transcriptions", params, &out); err != nil {
		return Result{}, classifyOpenAI(err)
	}

	return Result{
		Text:     out.Text,
		Segments: out.Segments,
		Language: out.Language,
	}, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openaiclient.Error
	if !errors.As(err, &apiErr) {
		return classify(err)
	}
	kind := KindUpstream
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		kind = KindInvalidFormat
	case http.StatusRequestEntityTooLarge:
		kind = KindTooLarge
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = KindConnection
	}
	return &Error{Kind: kind, Err: fmt.Errorf("speech-to-text status %d: %w", apiErr.StatusCode, err)}
}
