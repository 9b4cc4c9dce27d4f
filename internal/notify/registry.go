package notify

import (
	"strings"

	"alerteval/internal/config"
	"alerteval/internal/template"
)

// Registry resolves channel references against the configured channel set.
// Params: named channel entries from config.
// Returns: lookup helper for the dispatcher and the template engine.
type Registry struct {
	channels []config.ChannelConfig
}

// NewRegistry builds the channel registry.
// Params: channel entries in config order.
// Returns: initialized registry.
func NewRegistry(channels []config.ChannelConfig) *Registry {
	return &Registry{channels: channels}
}

// Lookup returns one channel by configured name.
// Params: channel name; matching is case-insensitive exact.
// Returns: channel config and existence flag.
func (r *Registry) Lookup(name string) (config.ChannelConfig, bool) {
	for _, channel := range r.channels {
		if strings.EqualFold(channel.Name, name) {
			return channel, true
		}
	}
	return config.ChannelConfig{}, false
}

// Resolve maps one shorthand reference to a configured channel.
// Params: channel kind and rendered identifier from alert text.
// Returns: resolved target and true, or false when nothing matches. Exact
// case-insensitive name matches win; generic-named kinds (webhook) fall back
// to a case-insensitive prefix match, then a contains match, so
// "@webhook-My_Web" resolves a channel literally named "My_Webhook".
func (r *Registry) Resolve(kind, identifier string) (template.Target, bool) {
	needle := strings.ToLower(identifier)
	var prefixMatch, partialMatch *config.ChannelConfig

	for i := range r.channels {
		channel := r.channels[i]
		if channel.Kind != kind {
			continue
		}
		name := strings.ToLower(channel.Name)
		if name == needle {
			return template.Target{Kind: channel.Kind, Name: channel.Name}, true
		}
		if kind != config.ChannelKindWebhook {
			continue
		}
		if prefixMatch == nil && strings.HasPrefix(name, needle) {
			prefixMatch = &r.channels[i]
		}
		if partialMatch == nil && strings.Contains(name, needle) {
			partialMatch = &r.channels[i]
		}
	}

	if prefixMatch != nil {
		return template.Target{Kind: prefixMatch.Kind, Name: prefixMatch.Name}, true
	}
	if partialMatch != nil {
		return template.Target{Kind: partialMatch.Kind, Name: partialMatch.Name}, true
	}
	return template.Target{}, false
}
