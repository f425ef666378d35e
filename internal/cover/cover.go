// Package cover produces artwork for a generated melody. A remote image
// model is optional; when it is not configured or fails, the pipeline falls
// back to a static placeholder so minting never blocks on artwork.
package cover

import (
	"context"
	"log"
)

// DefaultPrompt is the artwork prompt used when the caller supplies none.
const DefaultPrompt = "A unique abstract visualization of the melody."

// Art is a generated or fallback cover image reference.
type Art struct {
	URL      string `json:"url"`
	Provider string `json:"provider"`
	Prompt   string `json:"prompt"`
}

// Provider turns a prompt into a fetchable image URL.
type Provider interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Generator wraps an optional provider with a placeholder fallback.
type Generator struct {
	provider    Provider // nil when no image model is configured
	placeholder string
}

// NewGenerator creates a cover generator. provider may be nil.
func NewGenerator(provider Provider, placeholder string) *Generator {
	return &Generator{provider: provider, placeholder: placeholder}
}

// Generate returns cover art for a prompt. It never fails: any provider
// error is logged and replaced with the placeholder.
func (g *Generator) Generate(ctx context.Context, prompt string) Art {
	if prompt == "" {
		prompt = DefaultPrompt
	}

	if g.provider != nil {
		url, err := g.provider.GenerateImage(ctx, prompt)
		if err == nil && url != "" {
			return Art{URL: url, Provider: g.provider.Name(), Prompt: prompt}
		}
		if err != nil {
			log.Printf("cover generation failed, using placeholder: %v", err)
		}
	}

	return Art{URL: g.placeholder, Provider: "placeholder", Prompt: prompt}
}
