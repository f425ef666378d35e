// Package transcode squeezes raw generated audio into the compact mp3 shape
// the mint pipeline stores: fixed low bitrate, mono, metadata stripped, and
// duration capped from the start of the source.
package transcode

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// Transcoder converts raw audio via an ffmpeg subprocess. The zero value is
// not usable; construct with New.
type Transcoder struct {
	ffmpegPath  string
	bitrateKbps int
	tempDir     string
}

// New creates a transcoder that shells out to the given ffmpeg binary.
func New(ffmpegPath string, bitrateKbps int) *Transcoder {
	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		bitrateKbps: bitrateKbps,
		tempDir:     os.TempDir(),
	}
}

// Transcode re-encodes raw audio to capped-duration low-bitrate mono mp3.
//
// If ffmpeg is unavailable or errors, the original bytes come back unchanged:
// the pipeline favors availability over strict size compliance, and callers
// enforcing a hard ceiling must re-check size afterwards. Transcode at most
// once per raw asset; re-encoding already-compact audio truncates it again.
func (t *Transcoder) Transcode(raw []byte, targetDurationSec int) []byte {
	out, err := t.run(raw, targetDurationSec)
	if err != nil {
		log.Printf("Transcode failed, returning original audio: %v", err)
		return raw
	}
	return out
}

// run does the actual conversion through private per-invocation temp files.
// Both files are removed on every exit path.
func (t *Transcoder) run(raw []byte, targetDurationSec int) ([]byte, error) {
	id := uuid.NewString()
	inputPath := filepath.Join(t.tempDir, id+"_input.audio")
	outputPath := filepath.Join(t.tempDir, id+"_output.mp3")
	defer os.Remove(inputPath)
	defer os.Remove(outputPath)

	if err := os.WriteFile(inputPath, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write temp input: %w", err)
	}

	cmd := exec.Command(t.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-ss", "0",
		"-t", strconv.Itoa(targetDurationSec),
		"-acodec", "libmp3lame",
		"-b:a", strconv.Itoa(t.bitrateKbps)+"k",
		"-ac", "1",
		"-map_metadata", "-1",
		"-vn",
		"-f", "mp3",
		"-loglevel", "error",
		outputPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w (%s)", err, out)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read temp output: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ffmpeg produced empty output")
	}
	return data, nil
}

// Base64Size returns the number of bytes n raw bytes occupy once base64
// encoded, which is what counts against the on-chain inline budget.
func Base64Size(n int) int {
	return (n + 2) / 3 * 4
}

// FitsInlineBudget reports whether a payload's base64 encoding stays under
// the given ceiling in kilobytes.
func FitsInlineBudget(payload []byte, maxKB int) bool {
	return Base64Size(len(payload)) <= maxKB*1024
}
