package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// blend mixes two equal-length sample slices at the given progress
// (0.0 = all a, 1.0 = all b) with a smoothstep curve and int16 clipping.
func blend(a, b []int16, progress float64) []int16 {
	gain := Smoothstep(progress)
	result := make([]int16, len(a))

	for i := range a {
		mixed := float64(a[i])*(1-gain) + float64(b[i])*gain
		if mixed > 32767 {
			mixed = 32767
		} else if mixed < -32768 {
			mixed = -32768
		}
		result[i] = int16(mixed)
	}

	return result
}

// LoopFade prepares samples for seamless repetition: the final fadeFrames
// frames are blended into the opening ones and the opening ones are dropped,
// so that playing the result back-to-back has no click at the loop point.
// A melody too short to fade is returned unchanged.
func LoopFade(samples []int16, fadeFrames int) []int16 {
	totalFrames := len(samples) / FrameSamples
	if fadeFrames <= 0 || totalFrames < 2*fadeFrames {
		return samples
	}

	fade := fadeFrames * FrameSamples
	body := totalFrames*FrameSamples - fade

	out := make([]int16, body)
	copy(out, samples[fade:body])

	tailStart := body
	for i := 0; i < fadeFrames; i++ {
		progress := float64(i) / float64(fadeFrames)
		frame := blend(
			samples[tailStart+i*FrameSamples:tailStart+(i+1)*FrameSamples],
			samples[i*FrameSamples:(i+1)*FrameSamples],
			progress,
		)
		copy(out[body-fade+i*FrameSamples:], frame)
	}

	return out
}
