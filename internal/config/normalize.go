package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	if err := c.normalizeRegistry(); err != nil {
		return err
	}
	c.normalizeConversion()
	c.normalizeRender()
	c.normalizeExport()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.upload_dir", &c.Paths.UploadDir, defaultUploadDir},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDir},
		{"paths.export_dir", &c.Paths.ExportDir, defaultExportDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	if trimmed := strings.TrimSpace(c.Paths.TemplateFile); trimmed != "" {
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("paths.template_file: %w", err)
		}
		c.Paths.TemplateFile = expanded
	} else {
		c.Paths.TemplateFile = ""
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv(envAPIToken); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	origins := make([]string, 0, len(c.API.CORSOrigins))
	seen := make(map[string]struct{}, len(c.API.CORSOrigins))
	for _, origin := range c.API.CORSOrigins {
		normalized := strings.TrimRight(strings.TrimSpace(origin), "/")
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		origins = append(origins, normalized)
	}
	c.API.CORSOrigins = origins
	if c.API.MaxUploadMB <= 0 {
		c.API.MaxUploadMB = defaultMaxUploadMB
	}
}

func (c *Config) normalizeRegistry() error {
	c.Registry.Backend = strings.ToLower(strings.TrimSpace(c.Registry.Backend))
	if c.Registry.Backend == "" {
		c.Registry.Backend = defaultRegistryBackend
	}
	if trimmed := strings.TrimSpace(c.Registry.Path); trimmed != "" {
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("registry.path: %w", err)
		}
		c.Registry.Path = expanded
	}
	return nil
}

func (c *Config) normalizeConversion() {
	c.Conversion.Provider = strings.ToLower(strings.TrimSpace(c.Conversion.Provider))
	if c.Conversion.Provider == "" {
		c.Conversion.Provider = defaultConversionProvider
	}
	c.Conversion.APIURL = strings.TrimRight(strings.TrimSpace(c.Conversion.APIURL), "/")
	if c.Conversion.APIURL == "" {
		c.Conversion.APIURL = defaultDaTikZURL
	}
	c.Conversion.Model = strings.TrimSpace(c.Conversion.Model)
	if c.Conversion.Model == "" {
		c.Conversion.Model = defaultDaTikZModel
	}
	c.Conversion.APIKey = strings.TrimSpace(c.Conversion.APIKey)
	if c.Conversion.APIKey == "" {
		if value, ok := os.LookupEnv(envDaTikZAPIKey); ok {
			c.Conversion.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Conversion.TimeoutSeconds <= 0 {
		c.Conversion.TimeoutSeconds = defaultConversionTimeout
	}
	if c.Conversion.RetryAttempts <= 0 {
		c.Conversion.RetryAttempts = defaultConversionRetries
	}
}

func (c *Config) normalizeRender() {
	c.Render.Engine = strings.TrimSpace(c.Render.Engine)
	if c.Render.Engine == "" {
		c.Render.Engine = defaultLatexEngine
	}
	c.Render.Rasterizer = strings.TrimSpace(c.Render.Rasterizer)
	if c.Render.Rasterizer == "" {
		c.Render.Rasterizer = defaultRasterizer
	}
	c.Render.SVGConverter = strings.TrimSpace(c.Render.SVGConverter)
	if c.Render.SVGConverter == "" {
		c.Render.SVGConverter = defaultSVGConverter
	}
	if c.Render.DPI <= 0 {
		c.Render.DPI = defaultRenderDPI
	}
	if c.Render.TimeoutSeconds <= 0 {
		c.Render.TimeoutSeconds = defaultRenderTimeoutSeconds
	}
}

func (c *Config) normalizeExport() {
	c.Export.DefaultTitle = strings.TrimSpace(c.Export.DefaultTitle)
	if c.Export.DefaultTitle == "" {
		c.Export.DefaultTitle = defaultExportTitle
	}
	switch strings.ToLower(strings.TrimSpace(c.Export.PageSize)) {
	case "", "a4":
		c.Export.PageSize = PageSizeA4
	case "letter":
		c.Export.PageSize = PageSizeLetter
	}
	if c.Export.TimeoutSeconds <= 0 {
		c.Export.TimeoutSeconds = defaultExportTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
