package config

const (
	defaultConfigPath            = "~/.config/tikzflow/config.toml"
	defaultUploadDir             = "~/.local/share/tikzflow/uploads"
	defaultOutputDir             = "~/.local/share/tikzflow/outputs"
	defaultExportDir             = "~/.local/share/tikzflow/exports"
	defaultStateDir              = "~/.local/share/tikzflow/state"
	defaultLogDir                = "~/.local/share/tikzflow/logs"
	defaultAPIBind               = "127.0.0.1:8000"
	defaultCORSOrigin            = "http://localhost:3000"
	defaultViteCORSOrigin        = "http://localhost:5173"
	defaultMaxUploadMB           = 10
	defaultRegistryBackend       = "memory"
	defaultConversionProvider    = "template"
	defaultDaTikZURL             = "https://api.datikz.com/v2"
	defaultDaTikZModel           = "datikz-v2"
	defaultConversionTimeout     = 60
	defaultConversionRetries     = 3
	defaultLatexEngine           = "pdflatex"
	defaultRasterizer            = "pdftoppm"
	defaultSVGConverter          = "pdftocairo"
	defaultRenderDPI             = 300
	defaultRenderTimeoutSeconds  = 30
	defaultExportTitle           = "Physics Diagram"
	defaultExportPageSize        = "A4"
	defaultExportTimeoutSeconds  = 30
	defaultNtfyTimeoutSeconds    = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	envDaTikZAPIKey              = "DATIKZ_API_KEY"
	envAPIToken                  = "TIKZFLOW_API_TOKEN"
	defaultPlaceholderFallback   = true
)

// Enumerated config values.
const (
	ConversionProviderTemplate = "template"
	ConversionProviderDaTikZ   = "datikz"
	RegistryBackendMemory      = "memory"
	RegistryBackendSQLite      = "sqlite"
	PageSizeA4                 = "A4"
	PageSizeLetter             = "Letter"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir: defaultUploadDir,
			OutputDir: defaultOutputDir,
			ExportDir: defaultExportDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		API: API{
			Bind:        defaultAPIBind,
			CORSOrigins: []string{defaultCORSOrigin, defaultViteCORSOrigin},
			MaxUploadMB: defaultMaxUploadMB,
		},
		Registry: Registry{
			Backend: defaultRegistryBackend,
		},
		Conversion: Conversion{
			Provider:       defaultConversionProvider,
			APIURL:         defaultDaTikZURL,
			Model:          defaultDaTikZModel,
			TimeoutSeconds: defaultConversionTimeout,
			RetryAttempts:  defaultConversionRetries,
		},
		Render: Render{
			Engine:              defaultLatexEngine,
			Rasterizer:          defaultRasterizer,
			SVGConverter:        defaultSVGConverter,
			DPI:                 defaultRenderDPI,
			TimeoutSeconds:      defaultRenderTimeoutSeconds,
			PlaceholderFallback: defaultPlaceholderFallback,
		},
		Export: Export{
			DefaultTitle:   defaultExportTitle,
			PageSize:       defaultExportPageSize,
			TimeoutSeconds: defaultExportTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
			NotifyFailures:        true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
