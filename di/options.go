package di

import "github.com/corewire/di/internal/config"

// LoadConfig loads YAML configuration the same way the CLI and
// BootstrapFromFile do: explicit path, then config.Path()'s search
// locations, then environment overrides, falling back to config.Default().
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg = config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BootstrapFromFile loads configuration from path (see LoadConfig) and
// installs it as the process-wide default container.
func BootstrapFromFile(path string) (*Container, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return Bootstrap(cfg), nil
}
