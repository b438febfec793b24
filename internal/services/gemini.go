package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jwebster45206/chronicle-engine/pkg/chat"
)

const DefaultGeminiTemperature = 0.9

// GeminiService implements Generator for Google Gemini. Keys come from a
// credential pool; one client is kept per key.
type GeminiService struct {
	pool      *CredentialPool
	modelName string
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

var _ Generator = (*GeminiService)(nil)

// NewGeminiService creates a Gemini generator. Clients are created lazily.
func NewGeminiService(pool *CredentialPool, modelName string, logger *slog.Logger) *GeminiService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiService{
		pool:      pool,
		modelName: modelName,
		logger:    logger,
		clients:   make(map[string]*genai.Client),
	}
}

func (g *GeminiService) client(ctx context.Context, key string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[key]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	g.clients[key] = c
	return c, nil
}

// Generate sends the conversation to Gemini. System messages become the
// system instruction; the final user message is sent on a chat session
// seeded with the rest as history.
func (g *GeminiService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	key, slot := g.pool.EffectiveCredential()
	if key == "" {
		return nil, &ProviderError{Provider: "gemini", Slot: -1, Message: "no API key configured"}
	}

	client, err := g.client(ctx, key)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Slot: slot, Err: err}
	}

	modelName := g.modelName
	if req.Model != "" {
		modelName = req.Model
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(float32(temperatureOr(req.Temperature, DefaultGeminiTemperature)))

	system, history, last := toGeminiContents(req.Messages)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = GeminiSchema(req.Schema)
	}

	cs := model.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Slot: slot, Err: err}
	}

	text, err := geminiText(resp)
	if err != nil {
		return nil, &ProviderError{Provider: "gemini", Slot: slot, Err: err}
	}

	result := &GenerateResult{Text: text, Model: modelName}
	if resp.UsageMetadata != nil {
		result.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	g.logger.Debug("Gemini response received", "model", modelName, "slot", slot, "tokens", result.TotalTokens)
	return result, nil
}

// Close releases every client.
func (g *GeminiService) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for k, c := range g.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(g.clients, k)
	}
	return errors.Join(errs...)
}

// toGeminiContents splits messages into a system instruction, the chat
// history and the parts of the final turn.
func toGeminiContents(messages []chat.ChatMessage) (string, []*genai.Content, []genai.Part) {
	system, rest := chat.SplitSystem(messages)
	if len(rest) == 0 {
		return "", nil, []genai.Part{genai.Text(system)}
	}

	history := make([]*genai.Content, 0, len(rest)-1)
	for _, m := range rest[:len(rest)-1] {
		role := "user"
		if m.Role == chat.ChatRoleAgent {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return system, history, []genai.Part{genai.Text(rest[len(rest)-1].Content)}
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", fmt.Errorf("empty candidate (finish reason %v)", cand.FinishReason)
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return msgNoResponse, nil
	}
	return sb.String(), nil
}

// GeminiSchema converts a JSON Schema document into Gemini's schema type.
// Keywords Gemini does not support are dropped.
func GeminiSchema(s map[string]any) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{}

	typ, nullable := schemaType(s["type"])
	out.Nullable = nullable
	switch typ {
	case "string":
		out.Type = genai.TypeString
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	case "object":
		out.Type = genai.TypeObject
	default:
		if _, ok := s["properties"]; ok {
			out.Type = genai.TypeObject
		} else {
			out.Type = genai.TypeString
		}
	}

	if d, ok := s["description"].(string); ok {
		out.Description = d
	}
	if f, ok := s["format"].(string); ok {
		out.Format = f
	}
	if enum, ok := s["enum"].([]any); ok {
		for _, e := range enum {
			if str, ok := e.(string); ok {
				out.Enum = append(out.Enum, str)
			}
		}
	}
	if items, ok := s["items"].(map[string]any); ok {
		out.Items = GeminiSchema(items)
	}
	if props, ok := s["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if ps, ok := props[name].(map[string]any); ok {
				out.Properties[name] = GeminiSchema(ps)
			}
		}
	}
	switch req := s["required"].(type) {
	case []string:
		out.Required = append(out.Required, req...)
	case []any:
		for _, r := range req {
			if str, ok := r.(string); ok {
				out.Required = append(out.Required, str)
			}
		}
	}
	return out
}

// schemaType reads "type", which may be a string or a list including "null".
func schemaType(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, false
	case []any:
		var typ string
		nullable := false
		for _, x := range t {
			s, _ := x.(string)
			if s == "null" {
				nullable = true
			} else if typ == "" {
				typ = s
			}
		}
		return typ, nullable
	}
	return "", false
}
