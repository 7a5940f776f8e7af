package machine

import "fmt"

// ConfigError reports an invalid machine configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid machine config: %s: %s", e.Field, e.Message)
}
