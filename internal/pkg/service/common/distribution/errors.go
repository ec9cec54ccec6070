package distribution

import "fmt"

// ConfigurationError signals a wrong order of setup calls, for example a registration after the start.
type ConfigurationError struct {
	msg string
}

func NewConfigurationError(format string, a ...any) ConfigurationError {
	return ConfigurationError{msg: fmt.Sprintf(format, a...)}
}

func (e ConfigurationError) Error() string {
	return e.msg
}
