// Package openai provides OpenAI-compatible providers: chat completion with
// tools, Whisper speech-to-text and speech synthesis. Setting base_url points
// the same client at a compatible API such as Groq.
package openai

import (
	"errors"
	"fmt"

	"github.com/jeffo777/input-right/pkg/ai"
	"github.com/jeffo777/input-right/pkg/plugin"
	openai "github.com/sashabaranov/go-openai"
)

// Config holds the settings shared by all OpenAI providers.
type Config struct {
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"` // empty uses api.openai.com
	Model    string `json:"model"`
	Voice    string `json:"voice"`    // TTS only
	Language string `json:"language"` // STT only; empty auto-detects
}

func configFromMap(cfg map[string]any) Config {
	var c Config
	c.APIKey, _ = cfg["api_key"].(string)
	c.BaseURL, _ = cfg["base_url"].(string)
	c.Model, _ = cfg["model"].(string)
	c.Voice, _ = cfg["voice"].(string)
	c.Language, _ = cfg["language"].(string)
	return c
}

func newClient(cfg Config) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set engine.api_key or OPENAI_API_KEY)")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

// classify maps a client error onto the recoverable/fatal taxonomy.
func classify(err error, message string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ai.ClassifyStatus(apiErr.HTTPStatusCode, err, message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ai.ClassifyStatus(reqErr.HTTPStatusCode, err, message)
	}
	// no HTTP response at all
	return ai.ClassifyStatus(0, err, message)
}

func newOpenAISTT(cfg map[string]any) (any, error) { return NewWhisperSTT(configFromMap(cfg)) }
func newOpenAILLM(cfg map[string]any) (any, error) { return NewLLM(configFromMap(cfg)) }
func newOpenAITTS(cfg map[string]any) (any, error) { return NewTTS(configFromMap(cfg)) }

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "openai",
		Factory:     newOpenAISTT,
		Description: "OpenAI Whisper speech-to-text service",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "API key",
			"base_url": "optional OpenAI-compatible endpoint",
			"model":    openai.Whisper1,
			"language": "auto-detect (leave empty) or specify language code",
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "openai",
		Factory:     newOpenAILLM,
		Description: "OpenAI chat completion with tool calling",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "API key",
			"base_url": "optional OpenAI-compatible endpoint, e.g. https://api.groq.com/openai/v1",
			"model":    defaultChatModel,
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "openai",
		Factory:     newOpenAITTS,
		Description: "OpenAI text-to-speech service (raw PCM output)",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "API key",
			"model":   string(openai.TTSModel1),
			"voice":   string(openai.VoiceAlloy),
		},
	})
}
