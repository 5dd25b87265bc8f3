package providers

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Registry selects a gateway by configured or requested name.
type Registry struct {
	defaultName string
	gateways    map[string]Gateway
	enabled     map[string]bool
}

func NewRegistry(defaultName string) *Registry {
	return &Registry{
		defaultName: strings.ToLower(strings.TrimSpace(defaultName)),
		gateways:    make(map[string]Gateway),
		enabled:     make(map[string]bool),
	}
}

// NewRegistryFromSettings registers the mock and remote gateways.
func NewRegistryFromSettings(settings Settings, logger *zap.Logger) *Registry {
	r := NewRegistry(settings.DefaultProvider)
	r.Register(NewMockGateway(settings.Mock), settings.Mock.Enabled)
	r.Register(NewRedirectGateway(settings.Remote, logger), settings.Remote.Enabled)
	logger.Info("Payment providers configured",
		zap.String("default", r.defaultName),
		zap.Strings("enabled", r.EnabledNames()),
	)
	return r
}

func (r *Registry) Register(g Gateway, enabled bool) {
	name := strings.ToLower(g.Name())
	r.gateways[name] = g
	r.enabled[name] = enabled
}

// Resolve returns the gateway named name, or the default one when name is empty.
func (r *Registry) Resolve(name string) (Gateway, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.defaultName
	}
	g, ok := r.gateways[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, key)
	}
	if !r.enabled[key] {
		return nil, fmt.Errorf("%w: %q", ErrProviderDisabled, key)
	}
	return g, nil
}

func (r *Registry) EnabledNames() []string {
	names := make([]string, 0, len(r.enabled))
	for name, on := range r.enabled {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Lookup returns a registered gateway whether or not it is enabled. Callbacks for attempts
// started before a provider was switched off still need to settle.
func (r *Registry) Lookup(name string) (Gateway, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	g, ok := r.gateways[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, key)
	}
	return g, nil
}
