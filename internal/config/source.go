package config

// SourceConfig holds source-specific configuration for a single item source.
// This allows customizing fetch behavior per source.
type SourceConfig struct {
	// URLTemplate is the fetch URL for this source. The literal "{name}" is
	// replaced with the path-escaped item name.
	URLTemplate string `yaml:"urlTemplate,omitempty"`

	// Headers are custom HTTP headers to include in requests to this source,
	// on top of the rotating identity's headers.
	Headers map[string]string `yaml:"headers,omitempty"`

	// BaseDelayMillis overrides the global base delay for this source.
	// If zero, the global BaseDelay is used.
	BaseDelayMillis int `yaml:"baseDelayMillis,omitempty"`

	// MaxRetries overrides the global retry budget for this source.
	// If zero, the global MaxRetries is used.
	MaxRetries int `yaml:"maxRetries,omitempty"`
}

// IdentityConfig describes one identity profile in the rotation pool.
type IdentityConfig struct {
	// Name labels the profile in logs and reports.
	Name string `yaml:"name"`

	// UserAgent is the User-Agent header this profile presents.
	UserAgent string `yaml:"userAgent"`

	// AcceptLanguage is the Accept-Language header this profile presents.
	AcceptLanguage string `yaml:"acceptLanguage,omitempty"`

	// Headers are additional fixed headers for this profile.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// File represents the structure of the .harvestd configuration file.
type File struct {
	// Sources maps source names to their specific configurations.
	Sources map[string]SourceConfig `yaml:"sources,omitempty"`

	// Defaults contains default source configuration applied to all sources
	// unless overridden in the source-specific configuration.
	Defaults SourceConfig `yaml:"defaults,omitempty"`

	// Identities is the identity rotation pool. When empty, the built-in
	// browser profiles are used.
	Identities []IdentityConfig `yaml:"identities,omitempty"`
}

// GetSourceConfig returns the configuration for a specific source.
// It merges the source-specific configuration with defaults.
func (cf *File) GetSourceConfig(source string) SourceConfig {
	// Start with defaults
	result := cf.Defaults

	// Override with source-specific configuration if present
	if sc, ok := cf.Sources[source]; ok {
		if sc.URLTemplate != "" {
			result.URLTemplate = sc.URLTemplate
		}
		if sc.BaseDelayMillis != 0 {
			result.BaseDelayMillis = sc.BaseDelayMillis
		}
		if sc.MaxRetries != 0 {
			result.MaxRetries = sc.MaxRetries
		}
		if len(sc.Headers) > 0 {
			// Copy before merging so the shared defaults map is never mutated.
			merged := make(map[string]string, len(result.Headers)+len(sc.Headers))
			for k, v := range result.Headers {
				merged[k] = v
			}
			for k, v := range sc.Headers {
				merged[k] = v
			}
			result.Headers = merged
		}
	}

	return result
}
