package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Settings are the runtime options read from the environment. Command line
// flags take precedence.
type Settings struct {
	DataDir    string `env:"CROPSIM_DATA_DIR"   envDefault:".cropsim"`
	Storage    string `env:"CROPSIM_STORAGE"    envDefault:"file"`
	LogLevel   string `env:"CROPSIM_LOG_LEVEL"  envDefault:"info"`
	LogFormat  string `env:"CROPSIM_LOG_FORMAT" envDefault:"text"`
	Integrator string `env:"CROPSIM_INTEGRATOR" envDefault:"rk4"`
}

func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}
