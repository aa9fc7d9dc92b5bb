package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const configName = "headchecker"

// Read loads the optional service config file (headchecker.yml next to
// the binary or in the working directory). Defaults cover a config-less run.
func Read() (*viper.Viper, error) {
	cfg := viper.New()
	cfg.SetConfigName(configName)
	cfg.AddConfigPath(ProjectRoot())
	cfg.AddConfigPath(".")

	cfg.SetDefault("bind", ":8080")
	cfg.SetDefault("data_path", ".")
	cfg.SetDefault("redis_url", "")
	cfg.SetDefault("pipeline_workers", 8)
	cfg.SetDefault("url_concurrency", 5)

	err := cfg.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return cfg, nil
	}
	return cfg, err
}

func ProjectRoot() string {
	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}
	return filepath.Dir(ex)
}
