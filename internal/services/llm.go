package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwebster45206/chronicle-engine/pkg/chat"
)

const msgNoResponse = "(no response)"

// GenerateRequest is one call to a generation provider. A nil Schema asks
// for free text; otherwise the provider must return JSON matching it.
type GenerateRequest struct {
	Messages    []chat.ChatMessage
	Schema      map[string]any
	SchemaName  string
	Temperature *float64
	// Model overrides the provider's default model when set.
	Model string
}

// GenerateResult carries the raw text and the provider's token accounting.
type GenerateResult struct {
	Text        string
	TotalTokens int
	Model       string
}

// Generator is the generation service the engine talks to.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// ImageGenerator produces an image reference (a data URI or URL) for a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// ProviderError is returned when a provider rejects a call. Slot is the
// credential index used, or -1 when the provider has a single key.
type ProviderError struct {
	Provider string
	Slot     int
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Provider)
	if e.Status != 0 {
		fmt.Fprintf(&sb, " request failed with status %d", e.Status)
	} else {
		sb.WriteString(" request failed")
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	} else if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func temperatureOr(t *float64, def float64) float64 {
	if t == nil {
		return def
	}
	return *t
}

func Temperature(t float64) *float64 {
	return &t
}
