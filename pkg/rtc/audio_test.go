package rtc

import (
	"testing"
	"time"
)

func TestNewAudioFrame(t *testing.T) {
	tests := []struct {
		name        string
		sampleRate  int
		numChannels int
		dataLen     int
		wantErr     bool
	}{
		{name: "48kHz mono", sampleRate: 48000, numChannels: 1, dataLen: 960},
		{name: "16kHz mono", sampleRate: 16000, numChannels: 1, dataLen: 320},
		{name: "48kHz stereo", sampleRate: 48000, numChannels: 2, dataLen: 1920},
		{name: "wrong length", sampleRate: 48000, numChannels: 1, dataLen: 500, wantErr: true},
		{name: "zero rate", sampleRate: 0, numChannels: 1, dataLen: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := NewAudioFrame(make([]byte, tt.dataLen), tt.sampleRate, tt.numChannels, 100*time.Millisecond)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got frame %+v", frame)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if frame.SamplesPerChannel != tt.sampleRate/100 {
				t.Errorf("SamplesPerChannel = %d, want %d", frame.SamplesPerChannel, tt.sampleRate/100)
			}
			if frame.Duration() != FrameDuration {
				t.Errorf("Duration() = %v, want %v", frame.Duration(), FrameDuration)
			}
		})
	}
}

func TestFrameFromSamplesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	frame := FrameFromSamples(in, 16000, 1)

	if frame.SamplesPerChannel != len(in) {
		t.Fatalf("SamplesPerChannel = %d, want %d", frame.SamplesPerChannel, len(in))
	}
	out := frame.Samples()
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestRMS(t *testing.T) {
	silent := FrameFromSamples(make([]int16, 160), 16000, 1)
	if got := silent.RMS(); got != 0 {
		t.Errorf("silent RMS = %v, want 0", got)
	}

	loud := make([]int16, 160)
	for i := range loud {
		loud[i] = 16384
	}
	frame := FrameFromSamples(loud, 16000, 1)
	if got := frame.RMS(); got < 0.49 || got > 0.51 {
		t.Errorf("loud RMS = %v, want ~0.5", got)
	}
}

func TestClone(t *testing.T) {
	frame := FrameFromSamples([]int16{1, 2, 3}, 16000, 1)
	clone := frame.Clone()
	clone.Data[0] = 0xFF

	if frame.Data[0] == 0xFF {
		t.Error("Clone shares the underlying buffer")
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name        string
		frame       AudioFrame
		rate        int
		wantSamples int
	}{
		{"same rate mono", FrameFromSamples(make([]int16, 480), 48000, 1), 48000, 480},
		{"downsample", FrameFromSamples(make([]int16, 480), 48000, 1), 16000, 160},
		{"upsample", FrameFromSamples(make([]int16, 240), 24000, 1), 48000, 480},
		{"stereo downmix", FrameFromSamples(make([]int16, 960), 48000, 2), 48000, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.frame.Convert(tt.rate)
			if out.NumChannels != 1 || out.SampleRate != tt.rate {
				t.Errorf("got %dHz/%dch", out.SampleRate, out.NumChannels)
			}
			if out.SamplesPerChannel != tt.wantSamples {
				t.Errorf("SamplesPerChannel = %d, want %d", out.SamplesPerChannel, tt.wantSamples)
			}
		})
	}
}

func TestConvertPreservesLevel(t *testing.T) {
	samples := make([]int16, 240)
	for i := range samples {
		samples[i] = 1000
	}
	frame := FrameFromSamples(samples, 24000, 1)
	out := frame.Convert(48000)
	for i, s := range out.Samples() {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i, s)
		}
	}
}
