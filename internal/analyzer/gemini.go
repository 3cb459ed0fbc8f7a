package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"ytdigest/internal/retry"
)

// GeminiClient implements Model with the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
	// Retry applies to Generate only; uploads are not repeated.
	Retry retry.Config
}

// NewGeminiClient connects with apiKey and selects the model by name.
func NewGeminiClient(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("analyzer: gemini api key required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("analyzer: create gemini client: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  client.GenerativeModel(model),
		Retry:  retry.DefaultConfig(),
	}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, parts ...genai.Part) (string, error) {
	var text string
	err := retry.Do(ctx, g.Retry, isRetryableGemini, func(ctx context.Context) error {
		resp, err := g.model.GenerateContent(ctx, parts...)
		if err != nil {
			return err
		}
		text = responseText(resp)
		return nil
	})
	return text, err
}

func (g *GeminiClient) Upload(ctx context.Context, path, mimeType string) (*genai.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return g.client.UploadFile(ctx, "", f, &genai.UploadFileOptions{
		DisplayName: filepath.Base(path),
		MIMEType:    mimeType,
	})
}

func (g *GeminiClient) GetFile(ctx context.Context, name string) (*genai.File, error) {
	return g.client.GetFile(ctx, name)
}

func (g *GeminiClient) DeleteFile(ctx context.Context, name string) error {
	return g.client.DeleteFile(ctx, name)
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// isRetryableGemini retries quota and server errors only.
func isRetryableGemini(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return false
}
