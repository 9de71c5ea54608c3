package isochrone

import "github.com/kilianp07/provision/core/factory"

var providerRegistry = factory.NewRegistry[Provider]("isochrone provider")

// RegisterProvider adds a provider factory identified by name.
func RegisterProvider(name string, f factory.Factory[Provider]) error {
	return providerRegistry.Register(name, f)
}

// NewProvider creates the provider selected by cfg.Type.
func NewProvider(cfg factory.ModuleConfig) (Provider, error) {
	return providerRegistry.Create(cfg)
}

// Providers lists the registered provider names.
func Providers() []string {
	return providerRegistry.Names()
}
