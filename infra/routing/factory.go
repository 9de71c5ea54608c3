package routing

import (
	"github.com/kilianp07/provision/core/factory"
	"github.com/kilianp07/provision/core/isochrone"
	"github.com/kilianp07/provision/infra/logger"
)

func init() {
	_ = isochrone.RegisterProvider("primary", func(conf map[string]any) (isochrone.Provider, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPrimaryProvider(c, logger.New("routing-primary"))
	})
	_ = isochrone.RegisterProvider("alternative", func(conf map[string]any) (isochrone.Provider, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewAlternativeProvider(c, logger.New("routing-alternative"))
	})
}
