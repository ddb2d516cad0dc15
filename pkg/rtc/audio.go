// Package rtc holds the PCM audio frame exchanged between the room bridge,
// the voice activity detector, speech-to-text and text-to-speech providers.
package rtc

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// FrameDuration is the nominal length of one frame.
const FrameDuration = 10 * time.Millisecond

// AudioFrame is a chunk of 16-bit little-endian PCM.
// Len(Data) == SamplesPerChannel * NumChannels * 2.
type AudioFrame struct {
	Data              []byte
	SampleRate        int
	SamplesPerChannel int
	NumChannels       int
	Timestamp         time.Duration // offset from stream start, zero means live
}

// NewAudioFrame validates that data holds exactly 10ms of audio.
func NewAudioFrame(data []byte, sampleRate, numChannels int, timestamp time.Duration) (*AudioFrame, error) {
	if sampleRate <= 0 || numChannels <= 0 {
		return nil, fmt.Errorf("invalid audio format: %dHz %d channel(s)", sampleRate, numChannels)
	}
	samplesPerChannel := sampleRate / 100
	expectedLen := samplesPerChannel * numChannels * 2
	if len(data) != expectedLen {
		return nil, fmt.Errorf("audio frame length mismatch: got %d bytes, want %d for %dHz %d-channel 10ms",
			len(data), expectedLen, sampleRate, numChannels)
	}

	return &AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: samplesPerChannel,
		NumChannels:       numChannels,
		Timestamp:         timestamp,
	}, nil
}

// FrameFromSamples builds a frame from interleaved int16 samples of any length.
func FrameFromSamples(samples []int16, sampleRate, numChannels int) AudioFrame {
	if numChannels <= 0 {
		numChannels = 1
	}
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: len(samples) / numChannels,
		NumChannels:       numChannels,
	}
}

// Samples decodes the frame into interleaved int16 samples.
func (f *AudioFrame) Samples() []int16 {
	out := make([]int16, len(f.Data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(f.Data[i*2:]))
	}
	return out
}

// RMS returns the root mean square level normalised to 0..1.
func (f *AudioFrame) RMS() float32 {
	n := len(f.Data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(f.Data[i*2:])))
		sum += s * s
	}
	return float32(math.Sqrt(sum/float64(n)) / 32768.0)
}

// Clone creates a deep copy of the frame.
func (f *AudioFrame) Clone() *AudioFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)

	return &AudioFrame{
		Data:              data,
		SampleRate:        f.SampleRate,
		SamplesPerChannel: f.SamplesPerChannel,
		NumChannels:       f.NumChannels,
		Timestamp:         f.Timestamp,
	}
}

// Duration returns the playback length of the frame.
func (f *AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.SamplesPerChannel) * time.Second / time.Duration(f.SampleRate)
}

// Convert returns a mono copy of the frame at rate, downmixing channels by
// averaging and resampling by linear interpolation.
func (f *AudioFrame) Convert(rate int) AudioFrame {
	in := f.Samples()
	ch := f.NumChannels
	if ch <= 0 {
		ch = 1
	}

	mono := in
	if ch > 1 {
		mono = make([]int16, len(in)/ch)
		for i := range mono {
			var sum int
			for c := 0; c < ch; c++ {
				sum += int(in[i*ch+c])
			}
			mono[i] = int16(sum / ch)
		}
	}

	if rate == f.SampleRate || rate <= 0 || len(mono) == 0 {
		out := FrameFromSamples(mono, f.SampleRate, 1)
		out.Timestamp = f.Timestamp
		return out
	}

	n := len(mono) * rate / f.SampleRate
	out := make([]int16, n)
	step := float64(f.SampleRate) / float64(rate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		a := float64(mono[j])
		b := a
		if j+1 < len(mono) {
			b = float64(mono[j+1])
		}
		out[i] = int16(a + (b-a)*frac)
	}

	frame := FrameFromSamples(out, rate, 1)
	frame.Timestamp = f.Timestamp
	return frame
}
