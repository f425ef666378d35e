package musicgen

// stylePrompts maps each suggested style to a fuller MusicGen prompt.
// Each prompt describes instruments, mood, and production texture; it is
// appended after StylePrefix so the collection keeps a consistent base sound.
var stylePrompts = map[string]string{
	"cyberpunk rain": "Rain-soaked city ambience, glassy synthesizer arpeggios, distant neon hum, melancholic and futuristic",

	"lofi chill": "Vinyl crackle, mellow jazz piano chords, soft boom bap drums, warm bass, rainy day study vibes",

	"midnight jazz": "Upright bass walking lines, brushed drum kit, warm piano improvisations, late night club atmosphere",

	"ocean drift": "Gentle nylon string guitar, soft brushed percussion, tropical breeze mood, relaxed swaying rhythm",

	"starlit ambient": "Ethereal synthesizer pads, gentle reverb, slow evolving textures, peaceful and meditative",

	"retro arcade": "Chiptune leads over analog pads, pulsing arpeggios, playful 8-bit nostalgia, bright and bouncy",
}

// Styles returns the suggested style names in a stable order.
func Styles() []string {
	return []string{
		"cyberpunk rain",
		"lofi chill",
		"midnight jazz",
		"ocean drift",
		"starlit ambient",
		"retro arcade",
	}
}

// StylePrompt returns the full prompt text for a suggested style. Unknown
// styles pass through unchanged so free-text prompts keep working.
func StylePrompt(style string) string {
	if p, ok := stylePrompts[style]; ok {
		return p
	}
	return style
}
