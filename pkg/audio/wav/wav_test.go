package wav

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/jeffo777/input-right/pkg/rtc"
)

func testFrames(n int) []rtc.AudioFrame {
	frames := make([]rtc.AudioFrame, n)
	for i := range frames {
		samples := make([]int16, 160)
		for j := range samples {
			samples[j] = int16(i*160 + j)
		}
		frames[i] = rtc.FrameFromSamples(samples, 16000, 1)
	}
	return frames
}

func TestEncodeDecode(t *testing.T) {
	frames := testFrames(3)

	data, err := Encode(frames)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(data) != 44+3*320 {
		t.Fatalf("encoded length = %d", len(data))
	}

	decoded, hdr, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if hdr.SampleRate != 16000 || hdr.NumChannels != 1 || hdr.BitsPerSample != 16 {
		t.Errorf("header = %+v", hdr)
	}
	if len(decoded) != 3 {
		t.Fatalf("got %d frames, want 3", len(decoded))
	}
	for i := range decoded {
		if !bytes.Equal(decoded[i].Data, frames[i].Data) {
			t.Errorf("frame %d differs after round trip", i)
		}
		if want := time.Duration(i) * rtc.FrameDuration; decoded[i].Timestamp != want {
			t.Errorf("frame %d timestamp = %v, want %v", i, decoded[i].Timestamp, want)
		}
	}
}

func TestDecodePadsPartialFrame(t *testing.T) {
	data, _ := Encode(testFrames(1))
	// drop the last 100 bytes of audio and fix the data size
	data = data[:len(data)-100]
	data[40] = byte(220)
	data[41] = 0

	decoded, _, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(decoded) != 1 || len(decoded[0].Data) != 320 {
		t.Fatalf("expected one padded frame, got %d", len(decoded))
	}
}

func TestEncodeErrors(t *testing.T) {
	if _, err := Encode(nil); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Encode(nil) error = %v", err)
	}

	mixed := append(testFrames(1), rtc.FrameFromSamples(make([]int16, 480), 48000, 1))
	if _, err := Encode(mixed); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Encode(mixed rates) error = %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode(bytes.NewReader([]byte("RIFF\x00\x00\x00\x00AVI LIST"))); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Decode() error = %v", err)
	}
}
