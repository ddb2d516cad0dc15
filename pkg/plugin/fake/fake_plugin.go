// Package fake registers the scripted fake providers under the name "fake"
// so a full session can run without network access.
package fake

import (
	llmfake "github.com/jeffo777/input-right/pkg/ai/llm/fake"
	sttfake "github.com/jeffo777/input-right/pkg/ai/stt/fake"
	ttsfake "github.com/jeffo777/input-right/pkg/ai/tts/fake"
	vadfake "github.com/jeffo777/input-right/pkg/ai/vad/fake"
	"github.com/jeffo777/input-right/pkg/plugin"
)

func newFakeSTT(cfg map[string]any) (any, error) {
	transcript := "I have a leaky pipe under the kitchen sink"
	if t, ok := cfg["transcript"].(string); ok {
		transcript = t
	}
	return sttfake.NewFakeSTT(transcript), nil
}

func newFakeTTS(cfg map[string]any) (any, error) {
	return ttsfake.NewFakeTTS(), nil
}

func newFakeLLM(cfg map[string]any) (any, error) {
	responses := []string{
		"I can help with that. May I have your name?",
		"Thanks. What is the best email to reach you?",
	}
	if r, ok := cfg["responses"].([]string); ok && len(r) > 0 {
		responses = r
	}
	return llmfake.NewFakeLLM(responses...), nil
}

func newFakeVAD(cfg map[string]any) (any, error) {
	return vadfake.NewFakeVAD(), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "fake",
		Factory:     newFakeSTT,
		Description: "Fake STT provider for testing and development",
		Version:     "1.0.0",
		Config:      map[string]any{"transcript": "Customizable transcript text"},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "fake",
		Factory:     newFakeTTS,
		Description: "Fake TTS provider for testing and development",
		Version:     "1.0.0",
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "fake",
		Factory:     newFakeLLM,
		Description: "Fake LLM provider for testing and development",
		Version:     "1.0.0",
		Config:      map[string]any{"responses": []string{"List of predefined responses"}},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindVAD,
		Name:        "fake",
		Factory:     newFakeVAD,
		Description: "Fake VAD provider driven by explicit triggers",
		Version:     "1.0.0",
	})
}
