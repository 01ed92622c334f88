package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if strings.TrimSpace(c.API.Bind) == "" {
		return errors.New("api.bind must be set")
	}
	if c.API.MaxUploadMB <= 0 {
		return errors.New("api.max_upload_mb must be positive")
	}
	return nil
}

func (c *Config) validateRegistry() error {
	switch c.Registry.Backend {
	case RegistryBackendMemory, RegistryBackendSQLite:
		return nil
	default:
		return fmt.Errorf("registry.backend must be %q or %q, got %q", RegistryBackendMemory, RegistryBackendSQLite, c.Registry.Backend)
	}
}

func (c *Config) validateConversion() error {
	switch c.Conversion.Provider {
	case ConversionProviderTemplate:
	case ConversionProviderDaTikZ:
		if c.Conversion.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("conversion.api_key is required for the datikz provider. Set %s env var or edit %s (create with 'tikzflow config init')", envDaTikZAPIKey, defaultPath)
		}
		parsed, err := url.Parse(c.Conversion.APIURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("conversion.api_url must be an absolute URL, got %q", c.Conversion.APIURL)
		}
	default:
		return fmt.Errorf("conversion.provider must be %q or %q, got %q", ConversionProviderTemplate, ConversionProviderDaTikZ, c.Conversion.Provider)
	}
	return ensurePositiveMap(map[string]int{
		"conversion.timeout_seconds": c.Conversion.TimeoutSeconds,
		"conversion.retry_attempts":  c.Conversion.RetryAttempts,
	})
}

func (c *Config) validateRender() error {
	if strings.TrimSpace(c.Render.Engine) == "" {
		return errors.New("render.engine must be set")
	}
	if c.Render.DPI > 1200 {
		return errors.New("render.dpi must be at most 1200")
	}
	return ensurePositiveMap(map[string]int{
		"render.dpi":             c.Render.DPI,
		"render.timeout_seconds": c.Render.TimeoutSeconds,
	})
}

func (c *Config) validateExport() error {
	switch c.Export.PageSize {
	case PageSizeA4, PageSizeLetter:
	default:
		return fmt.Errorf("export.page_size must be %q or %q, got %q", PageSizeA4, PageSizeLetter, c.Export.PageSize)
	}
	if c.Export.TimeoutSeconds <= 0 {
		return errors.New("export.timeout_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
