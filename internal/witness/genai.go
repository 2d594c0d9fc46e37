package witness

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
	defaultTimeout    = 20 * time.Second
)

// generator is the subset of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config configures a GenAIWitness.
type Config struct {
	APIKey     string
	TextModel  string
	ImageModel string
	// Seal enables seal image generation.
	Seal    bool
	Timeout time.Duration
}

// GenAIWitness attests promises with Gemini models.
type GenAIWitness struct {
	models     generator
	textModel  string
	imageModel string
	seal       bool
	timeout    time.Duration
	logger     *zap.Logger
}

// NewGenAIWitness creates a Gemini-backed witness.
func NewGenAIWitness(ctx context.Context, cfg Config, logger *zap.Logger) (*GenAIWitness, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}
	return newGenAIWitness(client.Models, cfg, logger), nil
}

func newGenAIWitness(models generator, cfg Config, logger *zap.Logger) *GenAIWitness {
	if cfg.TextModel == "" {
		cfg.TextModel = defaultTextModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = defaultImageModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &GenAIWitness{
		models:     models,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		seal:       cfg.Seal,
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

var attestationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"statement": {Type: genai.TypeString},
		"milestones": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"statement", "milestones"},
}

// Attest implements Witness.
func (w *GenAIWitness) Attest(ctx context.Context, content string) Attestation {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	att, err := w.statement(ctx, content)
	if err != nil {
		w.logger.Warn("witness statement failed, using fallback", zap.Error(err))
		att = fallback()
	}

	if w.seal {
		ref, err := w.sealImage(ctx, content)
		if err != nil {
			w.logger.Warn("seal generation failed", zap.Error(err))
		}
		att.SealReference = ref
	}
	return att
}

func (w *GenAIWitness) statement(ctx context.Context, content string) (Attestation, error) {
	prompt := fmt.Sprintf(`You are the Grand Notary. Analyze this promise: %q.
1. Write a 1-sentence witness statement of gravitas.
2. Provide 3 short, objective success metrics (milestones).`, content)

	resp, err := w.models.GenerateContent(ctx, w.textModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   attestationSchema,
	})
	if err != nil {
		return Attestation{}, fmt.Errorf("generate statement: %w", err)
	}

	var out Attestation
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		return Attestation{}, fmt.Errorf("decode statement: %w", err)
	}
	if strings.TrimSpace(out.Statement) == "" || len(out.Milestones) == 0 {
		return Attestation{}, errors.New("empty attestation")
	}
	return out, nil
}

func (w *GenAIWitness) sealImage(ctx context.Context, content string) (string, error) {
	prompt := fmt.Sprintf("A futuristic, high-contrast, minimalist circular logo or seal representing the concept: %q. "+
		"Cyberpunk aesthetic, neon blue and obsidian, professional digital emblem, symmetrical.", content)

	resp, err := w.models.GenerateContent(ctx, w.imageModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate seal: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no seal candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mime := part.InlineData.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
	}
	return "", errors.New("no image in seal response")
}
