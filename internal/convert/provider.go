package convert

import (
	"fmt"

	"tikzflow/internal/config"
	"tikzflow/internal/services"
	"tikzflow/internal/stage"
	"tikzflow/internal/templates"
)

// New returns the converter selected by cfg.Conversion.Provider.
func New(cfg *config.Config, catalog *templates.Catalog) (stage.Converter, error) {
	switch cfg.Conversion.Provider {
	case config.ConversionProviderTemplate, "":
		return NewTemplateConverter(catalog), nil
	case config.ConversionProviderDaTikZ:
		opts := []Option{WithRetryMaxAttempts(cfg.Conversion.RetryAttempts)}
		if catalog != nil {
			opts = append(opts, WithTemplates(func(id string) (string, error) {
				tpl, err := catalog.Get(id)
				return tpl.TikZCode, err
			}))
		}
		return NewDaTikZClient(DaTikZConfig{
			APIKey:         cfg.Conversion.APIKey,
			BaseURL:        cfg.Conversion.APIURL,
			Model:          cfg.Conversion.Model,
			TimeoutSeconds: cfg.Conversion.TimeoutSeconds,
		}, opts...), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "convert", "provider",
			fmt.Sprintf("unknown conversion provider %q", cfg.Conversion.Provider), nil)
	}
}
