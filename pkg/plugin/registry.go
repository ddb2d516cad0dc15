// Package plugin provides a registry of AI providers (STT, TTS, LLM, VAD)
// selected by name from configuration.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jeffo777/input-right/pkg/ai/llm"
	"github.com/jeffo777/input-right/pkg/ai/stt"
	"github.com/jeffo777/input-right/pkg/ai/tts"
	"github.com/jeffo777/input-right/pkg/ai/vad"
)

// Provider kinds.
const (
	KindSTT = "stt"
	KindTTS = "tts"
	KindLLM = "llm"
	KindVAD = "vad"
)

// ErrNotFound is returned when no plugin is registered under a kind and name.
var ErrNotFound = errors.New("plugin not found")

// Factory creates a new provider instance from configuration.
// The returned value is cast to stt.STT, tts.TTS, llm.LLM or vad.VAD.
type Factory func(cfg map[string]any) (any, error)

// Plugin represents a registered plugin with its metadata.
type Plugin struct {
	Kind        string         // "stt", "tts", "llm", "vad"
	Name        string         // e.g. "openai", "energy"
	Factory     Factory
	Description string
	Version     string
	Config      map[string]any // documented configuration keys
}

// Registry manages plugin registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]map[string]*Plugin // [kind][name]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]map[string]*Plugin)}
}

var globalRegistry = NewRegistry()

// Register adds a plugin to the global registry.
// Panics if a plugin with the same kind and name is already registered.
func Register(kind, name string, factory Factory) {
	globalRegistry.Register(kind, name, factory)
}

// RegisterWithMetadata adds a plugin with metadata to the global registry.
// It is typically called from init() functions in plugin packages.
func RegisterWithMetadata(plugin *Plugin) {
	globalRegistry.RegisterWithMetadata(plugin)
}

// Get retrieves a plugin factory from the global registry.
func Get(kind, name string) (Factory, bool) {
	return globalRegistry.Get(kind, name)
}

// List returns all registered plugins of a kind, or all plugins if kind is empty.
func List(kind string) []*Plugin {
	return globalRegistry.List(kind)
}

// ListKinds returns all registered plugin kinds.
func ListKinds() []string {
	return globalRegistry.ListKinds()
}

// Register adds a plugin to this registry instance.
func (r *Registry) Register(kind, name string, factory Factory) {
	r.RegisterWithMetadata(&Plugin{Kind: kind, Name: name, Factory: factory})
}

// RegisterWithMetadata adds a plugin with metadata to this registry instance.
// Panics if a plugin with the same kind and name is already registered.
func (r *Registry) RegisterWithMetadata(plugin *Plugin) {
	if plugin.Kind == "" {
		panic("plugin kind cannot be empty")
	}
	if plugin.Name == "" {
		panic("plugin name cannot be empty")
	}
	if plugin.Factory == nil {
		panic("plugin factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.plugins[plugin.Kind] == nil {
		r.plugins[plugin.Kind] = make(map[string]*Plugin)
	}

	if existing, exists := r.plugins[plugin.Kind][plugin.Name]; exists {
		panic(fmt.Sprintf("plugin %s/%s already registered (existing version: %s, new version: %s)",
			plugin.Kind, plugin.Name, existing.Version, plugin.Version))
	}

	r.plugins[plugin.Kind][plugin.Name] = plugin
}

// Get retrieves a plugin factory from this registry instance.
func (r *Registry) Get(kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugin, exists := r.plugins[kind][name]
	if !exists {
		return nil, false
	}
	return plugin.Factory, true
}

// List returns registered plugins sorted by kind then name.
func (r *Registry) List(kind string) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var plugins []*Plugin
	for k, kindMap := range r.plugins {
		if kind != "" && k != kind {
			continue
		}
		for _, plugin := range kindMap {
			plugins = append(plugins, plugin)
		}
	}

	sort.Slice(plugins, func(i, j int) bool {
		if plugins[i].Kind != plugins[j].Kind {
			return plugins[i].Kind < plugins[j].Kind
		}
		return plugins[i].Name < plugins[j].Name
	})

	return plugins
}

// ListKinds returns all registered plugin kinds in sorted order.
func (r *Registry) ListKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.plugins))
	for kind := range r.plugins {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)
	return kinds
}

// Clear removes all plugins from this registry instance.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[string]map[string]*Plugin)
}

// create runs the named factory and asserts the result to T.
func create[T any](r *Registry, kind, name string, cfg map[string]any) (T, error) {
	var zero T
	factory, ok := r.Get(kind, name)
	if !ok {
		return zero, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, name)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	instance, err := factory(cfg)
	if err != nil {
		return zero, fmt.Errorf("create %s/%s: %w", kind, name, err)
	}
	provider, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("plugin %s/%s returned %T, which is not a %s provider", kind, name, instance, kind)
	}
	return provider, nil
}

// NewSTT creates a speech-to-text provider from this registry.
func (r *Registry) NewSTT(name string, cfg map[string]any) (stt.STT, error) {
	return create[stt.STT](r, KindSTT, name, cfg)
}

// NewTTS creates a text-to-speech provider from this registry.
func (r *Registry) NewTTS(name string, cfg map[string]any) (tts.TTS, error) {
	return create[tts.TTS](r, KindTTS, name, cfg)
}

// NewLLM creates a language model provider from this registry.
func (r *Registry) NewLLM(name string, cfg map[string]any) (llm.LLM, error) {
	return create[llm.LLM](r, KindLLM, name, cfg)
}

// NewVAD creates a voice activity detector from this registry.
func (r *Registry) NewVAD(name string, cfg map[string]any) (vad.VAD, error) {
	return create[vad.VAD](r, KindVAD, name, cfg)
}

// NewSTT creates a speech-to-text provider from the global registry.
func NewSTT(name string, cfg map[string]any) (stt.STT, error) { return globalRegistry.NewSTT(name, cfg) }

// NewTTS creates a text-to-speech provider from the global registry.
func NewTTS(name string, cfg map[string]any) (tts.TTS, error) { return globalRegistry.NewTTS(name, cfg) }

// NewLLM creates a language model provider from the global registry.
func NewLLM(name string, cfg map[string]any) (llm.LLM, error) { return globalRegistry.NewLLM(name, cfg) }

// NewVAD creates a voice activity detector from the global registry.
func NewVAD(name string, cfg map[string]any) (vad.VAD, error) { return globalRegistry.NewVAD(name, cfg) }
