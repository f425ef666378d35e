package musicgen

import (
	"log"
	"os"
)

// silentBufferSize is the size of the last-resort silent mp3 payload. Roughly
// one second of silence at the pipeline's target bitrate; downstream stages
// only require a non-empty, bounded payload.
const silentBufferSize = 1024

// mockAudio reads the configured local long-form asset. If the asset itself
// is unreadable it returns a silent buffer so the pipeline always has a
// valid audio object to work with.
//
// Known limitation: the seed does not vary the mock asset's content. Callers
// simulate variety by rolling a fresh seed for the next request.
func (g *Generator) mockAudio() ([]byte, string) {
	data, err := os.ReadFile(g.mockPath)
	if err != nil || len(data) == 0 {
		log.Printf("Mock audio %s unreadable, using silent buffer: %v", g.mockPath, err)
		return make([]byte, silentBufferSize), ProviderMock
	}
	return data, ProviderMock
}
