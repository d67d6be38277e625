package config

import "fmt"

// ConfigError reports malformed persisted state. It is fatal at startup.
type ConfigError struct {
	Path string // "<root>.loader.min_delay", "chats[0].links[1].id", ...
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
