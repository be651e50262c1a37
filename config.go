package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	qhttp "downtime/http"
	"downtime/logging"
	"downtime/ml"
	"downtime/service"
)

type Config struct {
	HTTP    qhttp.ServerConfig `yaml:"http"`
	Storage struct {
		DatasetPath  string `yaml:"dataset_path"`
		ArtifactPath string `yaml:"artifact_path"`
	} `yaml:"storage"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log logging.Config `yaml:"log"`
	ML  struct {
		Trees         int  `yaml:"trees"`
		MaxTreeDepth  int  `yaml:"max_tree_depth"`
		WatchArtifact bool `yaml:"watch_artifact"`
	} `yaml:"ml"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
}

func defaultConfig() *Config {
	config := &Config{
		HTTP: qhttp.DefaultServerConfig(),
		Log:  logging.DefaultConfig(),
	}
	config.Storage.DatasetPath = "data/uploaded_data.csv"
	config.Storage.ArtifactPath = "models/downtime_model.json"
	config.Database.Path = "data/downtime.db"

	forest := ml.DefaultForestConfig()
	config.ML.Trees = forest.Trees
	config.ML.MaxTreeDepth = forest.MaxDepth
	config.ML.WatchArtifact = true
	config.Cache.Size = service.DefaultConfig().CacheSize
	return config
}

// loadConfig decodes path over the defaults. A missing file yields the
// defaults unchanged.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}
	return config, nil
}

// findConfig looks for config.yaml in the working directory, then one level
// up so the binary also runs from cmd/.
func findConfig() string {
	configPath := "config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if _, err := os.Stat(filepath.Join("..", configPath)); err == nil {
			return filepath.Join("..", configPath)
		}
	}
	return configPath
}

// resolvePaths makes relative file paths relative to the config file.
func (c *Config) resolvePaths(configPath string) {
	base := filepath.Dir(configPath)
	if base == "." {
		return
	}
	for _, p := range []*string{&c.Storage.DatasetPath, &c.Storage.ArtifactPath, &c.Database.Path, &c.Log.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

func (c *Config) forestConfig() ml.ForestConfig {
	forest := ml.DefaultForestConfig()
	if c.ML.Trees > 0 {
		forest.Trees = c.ML.Trees
	}
	if c.ML.MaxTreeDepth > 0 {
		forest.MaxDepth = c.ML.MaxTreeDepth
	}
	return forest
}
