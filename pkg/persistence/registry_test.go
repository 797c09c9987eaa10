package persistence

import (
	"testing"
)

func TestRegisterProvider(t *testing.T) {
	mockFactory := func(config PluginConfig) (PluginPersistence, error) {
		return nil, nil
	}

	RegisterProvider("test", mockFactory)

	providers := ListProviders()
	found := false
	for _, p := range providers {
		if p == "test" {
			found = true
			break
		}
	}

	if !found {
		t.Errorf("Expected to find 'test' provider in list, got: %v", providers)
	}
}

func TestNewPersistenceUnknownProvider(t *testing.T) {
	cfg := ProviderConfig{
		Type:   "unknown_provider",
		Config: []byte("{}"),
	}

	_, err := NewPersistence(cfg, PluginConfig{})
	if err == nil {
		t.Error("Expected error for unknown provider, got nil")
	}
}
