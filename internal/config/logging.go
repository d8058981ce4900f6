package config

// LoggingConfig configures logging. Categories absent from Categories stay
// enabled; logging.Initialize applies the toggles.
type LoggingConfig struct {
	Level      string          `yaml:"level"`                // debug, info, warn, error
	Format     string          `yaml:"format"`               // json, console
	File       string          `yaml:"file"`                 // extra output path besides stderr
	Categories map[string]bool `yaml:"categories,omitempty"` // per-category toggles
}
