// Package llm wraps an OpenAI-compatible chat-completions endpoint (llama.cpp
// llama-server, vLLM, or the hosted API). Responses are expected to be JSON;
// callers fall back to deterministic paths when they are not.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
)

// KeywordCandidate is one scored candidate from extraction; counts are never
// taken from the model.
type KeywordCandidate struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

type KeywordResponse struct {
	Query    string             `json:"query"`
	Keywords []KeywordCandidate `json:"keywords"`
}

type SummaryResponse struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Client is the LLM surface the pipeline depends on.
type Client interface {
	// ExtractKeywords returns up to k scored candidates for query against text.
	// Kept on a short timeout so API paths can degrade to the frequency fallback.
	ExtractKeywords(ctx context.Context, query, text string, k int) (*KeywordResponse, error)
	// Summarize produces a brief summary plus 3-5 keywords for one transcript.
	Summarize(ctx context.Context, text string) (*SummaryResponse, error)
}

type client struct {
	log   *logger.Logger
	oa    openai.Client
	model string

	extractTimeout   time.Duration
	summarizeTimeout time.Duration
}

func NewClient(log *logger.Logger) Client {
	baseURL := envutil.String("LLM_BASE_URL", "http://localhost:8080/v1")
	apiKey := envutil.String("LLM_API_KEY", "not-needed")
	model := envutil.String("LLM_MODEL", "local-model")

	oa := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)

	return &client{
		log:              log.With("service", "LLMClient"),
		oa:               oa,
		model:            model,
		extractTimeout:   envutil.DurationSeconds("LLM_EXTRACT_TIMEOUT_SECONDS", 5),
		summarizeTimeout: envutil.DurationSeconds("LLM_SUMMARIZE_TIMEOUT_SECONDS", 300),
	}
}

var cjkRe = regexp.MustCompile(`\p{Han}`)

const extractionPromptTemplate = `You are an information extraction system.

Task: Extract candidate keywords/phrases that are highly relevant to the search query.

Rules:
- Output MUST be valid JSON only. No markdown, no extra text.
- Provide exactly %d candidate keywords/phrases.
- Each keyword is 1-5 words/terms, concise, no punctuation.
- Preserve original language script for non-Latin text.
- %s
- Prefer specific entities/concepts; avoid generic words (video, today, people, thing).
- Score is semantic relevance to the query on [0,1]. Higher is more relevant.
- Do NOT include counts.
- Do NOT include duplicates (same meaning).

Query: "%s"

Transcript:
"""
%s
"""

Return JSON:
{
  "query": "%s",
  "keywords": [
    {"term":"...", "score":0.0}
  ]
}`

func (c *client) ExtractKeywords(ctx context.Context, query, text string, k int) (*KeywordResponse, error) {
	languageRule := "Output keyword terms in the same language as the query."
	if cjkRe.MatchString(query) {
		languageRule = "Output keyword terms in Chinese only. Do not output English keywords."
	}

	prompt := fmt.Sprintf(extractionPromptTemplate, k, languageRule, query, truncate(text, 8000), query)

	ctx, cancel := context.WithTimeout(ctx, c.extractTimeout)
	defer cancel()

	content, err := c.complete(ctx, "You are a helpful assistant that extracts keywords in JSON format.", prompt, 0.1, int64(k*30))
	if err != nil {
		return nil, err
	}

	var out KeywordResponse
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &out); err != nil {
		return nil, fmt.Errorf("llm: keyword response not JSON: %w", err)
	}
	return &out, nil
}

const summaryPromptTemplate = `Analyzing the transcript below, provide a brief summary and keywords.

CRITICAL: You MUST respond in %s. If the transcript is in Chinese, the summary and keywords MUST be in Chinese.

JSON Format (strictly 3-5 keywords):
{
    "summary": "...",
    "keywords": ["...", "...", "..."]
}

TRANSCRIPT:
%s`

func (c *client) Summarize(ctx context.Context, text string) (*SummaryResponse, error) {
	// Language pinning: Chinese transcripts get a Chinese-pinned prompt when
	// more than a quarter of the sampled prefix is CJK.
	sample := truncate(text, 500)
	cjkCount := len(cjkRe.FindAllString(sample, -1))
	languageInstruction := "the same language as the input"
	if sampleLen := len([]rune(sample)); sampleLen > 0 && cjkCount*4 > sampleLen {
		languageInstruction = "中文"
	}

	prompt := fmt.Sprintf(summaryPromptTemplate, languageInstruction, truncate(text, 12000))

	ctx, cancel := context.WithTimeout(ctx, c.summarizeTimeout)
	defer cancel()

	content, err := c.complete(ctx, "You are a helpful assistant summarizing video transcripts as JSON.", prompt, 0.3, 512)
	if err != nil {
		return nil, err
	}

	var out SummaryResponse
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &out); err != nil {
		return nil, fmt.Errorf("llm: summary response not JSON: %w", err)
	}
	return &out, nil
}

func (c *client) complete(ctx context.Context, system, user string, temperature float64, maxTokens int64) (string, error) {
	resp, err := c.oa.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// stripCodeFences unwraps ```json ... ``` blocks some models insist on.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 2 {
		return strings.Join(lines[1:len(lines)-1], "\n")
	}
	return content
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Drop any partial rune left at the cut point.
	return strings.ToValidUTF8(s[:max], "")
}
