package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ProviderConfig selects a validator implementation plus its raw settings.
// Config is passed through untouched; each provider defines its own shape.
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// ValidatorFactory builds a Validator from provider-specific configuration.
type ValidatorFactory func(config json.RawMessage) (Validator, error)

var providers = struct {
	sync.RWMutex
	byType map[string]ValidatorFactory
}{byType: make(map[string]ValidatorFactory)}

// RegisterProvider makes a validator factory available under a provider type.
// Providers register themselves from init, so importing a provider package is
// enough to enable it.
func RegisterProvider(providerType string, factory ValidatorFactory) {
	providers.Lock()
	defer providers.Unlock()
	providers.byType[providerType] = factory
}

// NewValidator instantiates the validator named by the provider config.
func NewValidator(providerConfig ProviderConfig) (Validator, error) {
	providers.RLock()
	factory, ok := providers.byType[providerConfig.Type]
	providers.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown auth provider type: %s", providerConfig.Type)
	}
	return factory(providerConfig.Config)
}

// ListProviders returns the registered provider types, sorted.
func ListProviders() []string {
	providers.RLock()
	defer providers.RUnlock()

	names := make([]string, 0, len(providers.byType))
	for name := range providers.byType {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
