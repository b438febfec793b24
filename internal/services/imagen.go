package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	imagenBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	DefaultImagenModel = "imagen-3.0-generate-002"
)

// ImagenService implements ImageGenerator with the Gemini API predict endpoint.
type ImagenService struct {
	pool       *CredentialPool
	modelName  string
	baseURL    string
	httpClient *http.Client
}

var _ ImageGenerator = (*ImagenService)(nil)

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount int    `json:"sampleCount"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type imagenResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewImagenService(pool *CredentialPool, modelName string) *ImagenService {
	if modelName == "" {
		modelName = DefaultImagenModel
	}
	return &ImagenService{
		pool:      pool,
		modelName: modelName,
		baseURL:   imagenBaseURL,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

// WithBaseURL points the service at a different endpoint.
func (s *ImagenService) WithBaseURL(u string) *ImagenService {
	s.baseURL = u
	return s
}

// GenerateImage returns the first generated image as a data URI.
func (s *ImagenService) GenerateImage(ctx context.Context, prompt string) (string, error) {
	key, slot := s.pool.EffectiveCredential()
	if key == "" {
		return "", &ProviderError{Provider: "imagen", Slot: -1, Message: "no API key configured"}
	}

	body, err := json.Marshal(imagenRequest{
		Instances:  []imagenInstance{{Prompt: prompt}},
		Parameters: imagenParameters{SampleCount: 1, AspectRatio: "16:9"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:predict?key=%s", s.baseURL, s.modelName, url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: "imagen", Slot: slot, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Provider: "imagen", Slot: slot, Status: resp.StatusCode, Message: string(data)}
	}

	var out imagenResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != nil {
		return "", &ProviderError{Provider: "imagen", Slot: slot, Message: out.Error.Message}
	}
	if len(out.Predictions) == 0 || out.Predictions[0].BytesBase64Encoded == "" {
		return "", &ProviderError{Provider: "imagen", Slot: slot, Message: "no image returned"}
	}

	p := out.Predictions[0]
	mime := p.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + p.BytesBase64Encoded, nil
}
