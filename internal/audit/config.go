package audit

import "fmt"

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config configures the audit logger.
type Config struct {
	// Enabled enables audit logging.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output is the destination: stdout, stderr, or a file path.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// Format is json or text.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// DefaultConfig returns the default audit configuration: enabled, JSON to
// stdout.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Output:  "stdout",
		Format:  FormatJSON,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Format {
	case "", FormatJSON, FormatText:
		return nil
	default:
		return fmt.Errorf("unknown audit format %q", c.Format)
	}
}

// effectiveOutput returns the output destination with the default applied.
func (c *Config) effectiveOutput() string {
	if c.Output == "" {
		return "stdout"
	}
	return c.Output
}

// effectiveFormat returns the format with the default applied.
func (c *Config) effectiveFormat() string {
	if c.Format == "" {
		return FormatJSON
	}
	return c.Format
}
