// Package querygen turns a natural-language prompt into search-ready query
// strings. The OpenAI generator wraps the Chat Completions API; Static is a
// fixed-list generator for tests and examples.
package querygen

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxQueries caps the generated query set.
const MaxQueries = 5

// systemPrompt instructs the model to produce high-recall lead-generation
// queries as plain comma-separated text.
const systemPrompt = `You are a lead generation specialist. Generate 2 high-recall search queries to find contact information for the user.

Requirements:
1. Create diverse queries using different keyword combinations
2. Include location-specific terms
3. Use industry-specific terminology
4. Do not search for aggregator websites.
5. Focus on findable contact information

Format each query to be Google search-ready.

Example patterns to follow:
- Direct business type + location + contact
- Industry associations + location
- Business directories + specific terms
- Professional networks + area
- Service-specific searches

Only generate the queries and nothing else. generate the queries separated by commas but do not write them in markdown, just give me plaintext`

// Options configure the OpenAI generator. Kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model       string
	Temperature float64
}

// OpenAIGenerator generates queries with the OpenAI Chat Completions API.
type OpenAIGenerator struct {
	client *openai.Client
	opts   Options
	logger zerolog.Logger
}

// NewOpenAI creates a generator using the default client (API key from the
// environment).
func NewOpenAI(optFns ...func(o *Options)) *OpenAIGenerator {
	client := openai.NewClient()
	return NewOpenAIFromClient(&client, optFns...)
}

// NewOpenAIFromClient creates a generator from an existing client.
func NewOpenAIFromClient(client *openai.Client, optFns ...func(o *Options)) *OpenAIGenerator {
	opts := Options{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &OpenAIGenerator{
		client: client,
		opts:   opts,
		logger: log.With().Str("component", "querygen").Logger(),
	}
}

// Generate produces 1-MaxQueries distinct queries for a prompt. Model output
// that cannot be parsed falls back to deterministic template queries, so a
// reachable model never yields zero queries.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) ([]string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       g.opts.Model,
		Temperature: openai.Float(g.opts.Temperature),
	})
	if err != nil {
		g.logger.Error().Err(err).Msg("Query generation request failed")
		return nil, fmt.Errorf("query generation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("query generation: empty completion")
	}

	queries := ParseQueries(resp.Choices[0].Message.Content, prompt)

	g.logger.Debug().
		Str("prompt", prompt).
		Strs("queries", queries).
		Msg("Generated search queries")

	return queries, nil
}

// Static is a fixed-list generator for tests and examples.
type Static []string

// Generate returns the fixed list, capped at MaxQueries.
func (s Static) Generate(_ context.Context, _ string) ([]string, error) {
	if len(s) > MaxQueries {
		return s[:MaxQueries], nil
	}
	return s, nil
}

var (
	listPrefixRe   = regexp.MustCompile(`^\d+[.)]\s*`)
	bulletPrefixRe = regexp.MustCompile(`^[-*]\s*`)
)

// ParseQueries extracts query strings from raw model output. Line-oriented
// lists are preferred; a single comma-separated line is split as a fallback;
// unusable output degrades to template queries derived from the prompt.
// The result is distinct, capped at MaxQueries.
func ParseQueries(output, prompt string) []string {
	var queries []string

	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		clean := strings.TrimSpace(line)
		clean = listPrefixRe.ReplaceAllString(clean, "")
		clean = bulletPrefixRe.ReplaceAllString(clean, "")
		clean = strings.Trim(clean, `"'`)

		if len(clean) > 5 {
			queries = append(queries, clean)
		}
	}

	if len(queries) == 0 && strings.Contains(output, ",") {
		for _, part := range strings.Split(output, ",") {
			clean := strings.Trim(strings.TrimSpace(part), `"'`)
			if clean != "" {
				queries = append(queries, clean)
			}
		}
	}

	if len(queries) == 0 {
		base := strings.ToLower(prompt)
		queries = []string{
			base + " contact information",
			base + " email phone",
			base + " address contact details",
		}
	}

	seen := make(map[string]struct{}, len(queries))
	distinct := make([]string, 0, len(queries))
	for _, q := range queries {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		distinct = append(distinct, q)
		if len(distinct) == MaxQueries {
			break
		}
	}

	return distinct
}
