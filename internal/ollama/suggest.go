package ollama

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Suggester uses an LLM to propose a title and description for a melody
// before it is minted. Suggestions are optional; every method degrades to a
// deterministic fallback when the LLM is unreachable or returns junk.
type Suggester struct {
	client *Client
}

// NewSuggester creates a suggester backed by an Ollama client.
func NewSuggester(client *Client) *Suggester {
	return &Suggester{client: client}
}

const titleSystemPrompt = `You are a track name generator for generative seed melodies.

Given a style and a numeric seed, generate a short evocative track title (2-4 words).

Rules:
- Titles should feel like real instrumental track titles
- Evocative and atmospheric, not literal
- No style name in the title (don't say "Lo-fi Loop" for lo-fi)
- No numbers, no "Track 1", no "Untitled"

Output ONLY the title. Nothing else. No quotes.

/no_think`

// SuggestTitle proposes a title for a melody. Returns the deterministic
// "Melody #<seed>" fallback when the LLM fails.
func (s *Suggester) SuggestTitle(ctx context.Context, style string, seed uint64) string {
	fallback := fmt.Sprintf("Melody #%d", seed)
	if s == nil || s.client == nil {
		return fallback
	}

	prompt := fmt.Sprintf("Style: %s\nSeed: %d", style, seed)
	title, err := s.client.Generate(ctx, titleSystemPrompt, prompt)
	if err != nil {
		log.Printf("ollama title suggestion failed: %v", err)
		return fallback
	}

	title = cleanResponse(title)
	if title == "" || len(title) > 60 || strings.Count(title, " ") > 4 {
		log.Printf("ollama returned unusable title: %q", title)
		return fallback
	}
	return title
}

const descriptionSystemPrompt = `You are a description writer for generative seed melodies.

Given a style and a track title, write ONE sentence (under 30 words) describing the mood and sound of the melody.

Rules:
- Describe the SOUND: instruments, texture, tempo, atmosphere
- No marketing language, no "unique", no "one of a kind"
- No references to AI, blockchains, or tokens

Output ONLY the sentence. Nothing else. No quotes.

/no_think`

// SuggestDescription proposes a one-line description. Returns a plain
// fallback when the LLM fails.
func (s *Suggester) SuggestDescription(ctx context.Context, style, title string) string {
	fallback := fmt.Sprintf("A generative %s melody.", style)
	if s == nil || s.client == nil {
		return fallback
	}

	prompt := fmt.Sprintf("Style: %s\nTitle: %s", style, title)
	desc, err := s.client.Generate(ctx, descriptionSystemPrompt, prompt)
	if err != nil {
		log.Printf("ollama description suggestion failed: %v", err)
		return fallback
	}

	desc = cleanResponse(desc)
	if desc == "" || len(desc) > 240 {
		log.Printf("ollama returned unusable description: %q", desc)
		return fallback
	}
	return desc
}

// cleanResponse strips common LLM artifacts from output.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)

	// Strip thinking tags (Qwen 3 thinking mode leakage).
	if strings.HasPrefix(s, "<think>") {
		if idx := strings.Index(s, "</think>"); idx >= 0 {
			s = s[idx+len("</think>"):]
		}
	} else if idx := strings.Index(s, "</think>"); idx >= 0 {
		s = s[idx+len("</think>"):]
	}
	s = strings.TrimSpace(s)

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
