// Package wav encodes and decodes 16-bit PCM RIFF/WAVE payloads to and from
// 10ms audio frames.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jeffo777/input-right/pkg/rtc"
)

const (
	bitsPerSample = 16
	pcmFormat     = 1
)

var ErrInvalidFormat = errors.New("wav: invalid format")

// Header describes the PCM layout of a WAV payload.
type Header struct {
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Encode concatenates frames into a single WAV payload. All frames must share
// the sample rate and channel count of the first one.
func Encode(frames []rtc.AudioFrame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrInvalidFormat)
	}
	rate, channels := frames[0].SampleRate, frames[0].NumChannels

	dataSize := 0
	for i, f := range frames {
		if f.SampleRate != rate || f.NumChannels != channels {
			return nil, fmt.Errorf("%w: frame %d is %dHz/%dch, expected %dHz/%dch",
				ErrInvalidFormat, i, f.SampleRate, f.NumChannels, rate, channels)
		}
		dataSize += len(f.Data)
	}

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)
	writeHeader(&buf, uint32(rate), uint16(channels), uint32(dataSize))
	for _, f := range frames {
		buf.Write(f.Data)
	}
	return buf.Bytes(), nil
}

func writeHeader(w io.Writer, rate uint32, channels uint16, dataSize uint32) {
	blockAlign := channels * bitsPerSample / 8

	w.Write([]byte("RIFF"))
	binary.Write(w, binary.LittleEndian, 36+dataSize)
	w.Write([]byte("WAVEfmt "))
	binary.Write(w, binary.LittleEndian, uint32(16))
	binary.Write(w, binary.LittleEndian, uint16(pcmFormat))
	binary.Write(w, binary.LittleEndian, channels)
	binary.Write(w, binary.LittleEndian, rate)
	binary.Write(w, binary.LittleEndian, rate*uint32(blockAlign))
	binary.Write(w, binary.LittleEndian, blockAlign)
	binary.Write(w, binary.LittleEndian, uint16(bitsPerSample))
	w.Write([]byte("data"))
	binary.Write(w, binary.LittleEndian, dataSize)
}

// Decode reads a WAV payload and splits it into 10ms frames. A trailing
// partial frame is zero padded.
func Decode(r io.Reader) ([]rtc.AudioFrame, Header, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, Header{}, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, Header{}, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrInvalidFormat)
	}

	var hdr Header
	haveFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return nil, hdr, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, hdr, fmt.Errorf("%w: fmt chunk too small: %d bytes", ErrInvalidFormat, size)
			}
			fmtData := make([]byte, size)
			if _, err := io.ReadFull(r, fmtData); err != nil {
				return nil, hdr, fmt.Errorf("read fmt chunk: %w", err)
			}
			if f := binary.LittleEndian.Uint16(fmtData[0:2]); f != pcmFormat {
				return nil, hdr, fmt.Errorf("%w: only PCM is supported, got format %d", ErrInvalidFormat, f)
			}
			hdr.NumChannels = binary.LittleEndian.Uint16(fmtData[2:4])
			hdr.SampleRate = binary.LittleEndian.Uint32(fmtData[4:8])
			hdr.BitsPerSample = binary.LittleEndian.Uint16(fmtData[14:16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, hdr, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidFormat)
			}
			hdr.DataSize = size
			frames, err := readFrames(io.LimitReader(r, int64(size)), hdr)
			return frames, hdr, err
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, hdr, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

func readFrames(r io.Reader, hdr Header) ([]rtc.AudioFrame, error) {
	if hdr.BitsPerSample != bitsPerSample {
		return nil, fmt.Errorf("%w: only 16-bit samples are supported, got %d-bit", ErrInvalidFormat, hdr.BitsPerSample)
	}
	if hdr.NumChannels == 0 || hdr.SampleRate == 0 || hdr.SampleRate%100 != 0 {
		return nil, fmt.Errorf("%w: unsupported layout %dHz/%dch", ErrInvalidFormat, hdr.SampleRate, hdr.NumChannels)
	}

	samplesPerFrame := int(hdr.SampleRate) / 100
	bytesPerFrame := samplesPerFrame * int(hdr.NumChannels) * 2

	var frames []rtc.AudioFrame
	for i := 0; ; i++ {
		data := make([]byte, bytesPerFrame)
		n, err := io.ReadFull(r, data)
		if n > 0 {
			frames = append(frames, rtc.AudioFrame{
				Data:              data,
				SampleRate:        int(hdr.SampleRate),
				SamplesPerChannel: samplesPerFrame,
				NumChannels:       int(hdr.NumChannels),
				Timestamp:         time.Duration(i) * rtc.FrameDuration,
			})
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return frames, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read audio data: %w", err)
		}
	}
}
