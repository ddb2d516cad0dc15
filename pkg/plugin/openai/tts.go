package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/tts"
	"github.com/jeffo777/input-right/pkg/rtc"
	openai "github.com/sashabaranov/go-openai"
)

// pcmSampleRate is the fixed rate of the "pcm" response format.
const pcmSampleRate = 24000

// TTS implements tts.TTS, requesting raw 16-bit mono PCM.
type TTS struct {
	client *openai.Client
	model  string
	voice  string
}

// NewTTS creates a speech synthesis provider.
func NewTTS(cfg Config) (*TTS, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.TTSModel1)
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &TTS{client: client, model: model, voice: voice}, nil
}

// Synthesize streams the response body as 10ms frames.
func (o *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan rtc.AudioFrame, error) {
	voice := req.Voice
	if voice == "" {
		voice = o.voice
	}
	speechReq := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	}
	if req.Speed > 0 {
		speechReq.Speed = float64(req.Speed)
	}

	resp, err := o.client.CreateSpeech(ctx, speechReq)
	if err != nil {
		return nil, classify(err, "speech synthesis failed")
	}

	frames := make(chan rtc.AudioFrame, 10)
	go func() {
		defer close(frames)
		defer resp.Close()
		if err := streamPCM(ctx, resp, frames); err != nil {
			slog.Error("reading speech response", slog.String("error", err.Error()))
		}
	}()
	return frames, nil
}

// streamPCM chunks raw PCM into 10ms frames, zero padding the tail.
func streamPCM(ctx context.Context, r io.Reader, out chan<- rtc.AudioFrame) error {
	const bytesPerFrame = pcmSampleRate / 100 * 2
	for i := 0; ; i++ {
		buf := make([]byte, bytesPerFrame)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			frame := rtc.AudioFrame{
				Data:              buf,
				SampleRate:        pcmSampleRate,
				SamplesPerChannel: pcmSampleRate / 100,
				NumChannels:       1,
				Timestamp:         time.Duration(i) * rtc.FrameDuration,
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return nil
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Capabilities returns the provider's capabilities.
func (o *TTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Streaming:            true,
		SupportedLanguages:   []string{"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh"},
		SupportedVoices:      []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"},
		SampleRates:          []int{pcmSampleRate},
		SupportsSpeedControl: true,
	}
}
