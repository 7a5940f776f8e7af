package cluster

import "fmt"

// ConfigError reports an invalid cluster configuration or topology file.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid cluster config: %s: %s", e.Field, e.Message)
}

// StartError reports a machine that could not bind its listener.
type StartError struct {
	Machine int
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start machine %d: %v", e.Machine, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
