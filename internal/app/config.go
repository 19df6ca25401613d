package app

import "errors"

// Config holds everything an App instance needs to run.
type Config struct {
	// ModelPath names a .hcl file or a directory of .hcl files.
	ModelPath string

	LogFormat string
	LogLevel  string

	// Params and Unknowns select the derivative query; Mode picks how it is
	// answered ("fwd", "rev", or "fd"). All empty means values only.
	Params   []string
	Unknowns []string
	Mode     string

	// Include and Exclude filter the printed snapshot by promoted name.
	Include []string
	Exclude []string
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("ModelPath is a required configuration field and cannot be empty")
	}
	switch cfg.Mode {
	case "", "fwd", "rev", "fd":
	default:
		return nil, errors.New("Mode must be one of 'fwd', 'rev', or 'fd'")
	}
	if cfg.Mode != "" && (len(cfg.Params) == 0 || len(cfg.Unknowns) == 0) {
		return nil, errors.New("a derivative mode needs both params and unknowns")
	}
	return &cfg, nil
}
