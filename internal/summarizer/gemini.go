package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-1.5-flash"

const analysisPrompt = `You are an expert at analysing GitHub repositories.
Analyse the README below and give a short summary and some interesting facts.

README Content:
%s

Reply in exactly this format:
SUMMARY: <a short, clear summary of the repository>
COOL_FACTS: <interesting facts separated by |>
`

// Summarizer turns README text into an Analysis.
type Summarizer interface {
	Summarize(ctx context.Context, readme string) (*Analysis, error)
}

// GeminiSummarizer asks a Gemini model for the analysis.
type GeminiSummarizer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiSummarizer(ctx context.Context, apiKey, modelName string) (*GeminiSummarizer, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	return &GeminiSummarizer{client: client, model: model}, nil
}

func (g *GeminiSummarizer) Summarize(ctx context.Context, readme string) (*Analysis, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(fmt.Sprintf(analysisPrompt, readme)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("%w: empty model response", ErrUpstream)
	}
	return ParseAnalysis(text), nil
}

func (g *GeminiSummarizer) Close() error {
	return g.client.Close()
}

// responseText joins the text parts of the first candidate that has content.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}
