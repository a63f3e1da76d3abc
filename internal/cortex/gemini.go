package cortex

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"alex/internal/tools"
)

// Gemini adapts the google genai SDK to the Chatter and ToolChatter
// capabilities. One client serves every Gemini model name.
type Gemini struct {
	client *genai.Client
	log    *zap.Logger
}

// NewGemini creates a Gemini adapter.
func NewGemini(ctx context.Context, apiKey string, log *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Gemini{client: client, log: log.Named("gemini")}, nil
}

// Complete runs a plain text generation over the conversation history.
func (g *Gemini) Complete(ctx context.Context, model, system string, messages []Message, opts GenOptions) (string, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := genConfig(system, opts)

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}

	g.log.Debug("generation complete",
		zap.String("model", model),
		zap.Int("response_len", len(text)))
	return text, nil
}

// NewToolSession starts a function-calling conversation seeded with the
// system prompt and the user message, restricted to the given catalog.
func (g *Gemini) NewToolSession(model, system, userMessage string, catalog []*tools.Tool, opts GenOptions) ToolSession {
	cfg := genConfig(system, opts)
	if decls := declarationsFor(catalog); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return &geminiToolSession{
		gemini: g,
		model:  model,
		config: cfg,
		contents: []*genai.Content{
			genai.NewContentFromText(userMessage, genai.RoleUser),
		},
	}
}

// Close releases the underlying client. The genai client holds no
// resources that need explicit release.
func (g *Gemini) Close() error {
	return nil
}

type geminiToolSession struct {
	gemini   *Gemini
	model    string
	config   *genai.GenerateContentConfig
	contents []*genai.Content
}

func (s *geminiToolSession) Next(ctx context.Context) (*ToolStep, error) {
	resp, err := s.gemini.client.Models.GenerateContent(ctx, s.model, s.contents, s.config)
	if err != nil {
		return nil, fmt.Errorf("gemini tool generate failed: %w", err)
	}

	step := &ToolStep{Text: resp.Text()}
	for _, fc := range resp.FunctionCalls() {
		step.Calls = append(step.Calls, ToolCall{Name: fc.Name, Args: fc.Args})
	}

	// Keep the model's own message in the history so function responses
	// line up with the calls that produced them.
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		s.contents = append(s.contents, resp.Candidates[0].Content)
	}

	s.gemini.log.Debug("tool step",
		zap.String("model", s.model),
		zap.Int("calls", len(step.Calls)),
		zap.Int("text_len", len(step.Text)))
	return step, nil
}

func (s *geminiToolSession) Push(results []ToolResult) {
	if len(results) == 0 {
		return
	}
	parts := make([]*genai.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, &genai.Part{
			FunctionResponse: &genai.FunctionResponse{
				Name:     r.Name,
				Response: r.Response,
			},
		})
	}
	s.contents = append(s.contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: parts,
	})
}

func genConfig(system string, opts GenOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.TopP > 0 {
		cfg.TopP = genai.Ptr(opts.TopP)
	}
	if opts.TopK > 0 {
		cfg.TopK = genai.Ptr(opts.TopK)
	}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = opts.MaxOutputTokens
	}
	return cfg
}

// declarationsFor maps the catalog to genai function declarations.
func declarationsFor(catalog []*tools.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(catalog))
	for _, t := range catalog {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaFor(t.Schema),
		})
	}
	return decls
}

func schemaFor(s tools.Schema) *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Properties))
	for name, p := range s.Properties {
		prop := &genai.Schema{
			Type:        genaiType(p.Type),
			Description: p.Description,
		}
		if p.Items != nil {
			prop.Items = &genai.Schema{Type: genaiType(p.Items.Type)}
		}
		if len(p.Enum) > 0 {
			for _, e := range p.Enum {
				if str, ok := e.(string); ok {
					prop.Enum = append(prop.Enum, str)
				}
			}
		}
		props[name] = prop
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   s.Required,
	}
}

func genaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
