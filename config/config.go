package config

import (
	"os"
	"sync"

	"stageflow/logutils"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Postgres struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		DBName   string `yaml:"dbname"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		SSLMode  string `yaml:"sslmode"`
		TimeZone string `yaml:"TimeZone"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Auth struct {
		AccessTokenSecret      string `yaml:"accessTokenSecret"`
		AccessTokenExpiryHour  int    `yaml:"accessTokenExpiryHour"`
		RefreshTokenExpiryHour int    `yaml:"refreshTokenExpiryHour"`
	} `yaml:"auth"`
	Import struct {
		UploadDir        string `yaml:"uploadDir"`
		DefaultBatchSize int    `yaml:"defaultBatchSize"`
		// A processing import older than this many minutes is marked stale.
		StaleAfterMinutes int `yaml:"staleAfterMinutes"`
	} `yaml:"import"`
}

var (
	once   sync.Once
	config *Config
)

func GetConfig() *Config {
	once.Do(func() {
		config = initConfig()
	})
	return config
}

// initConfig reads the configuration file. The path defaults to
// ./etc/config.yaml and can be overridden with STAGEFLOW_CONFIG for
// local debugging.
func initConfig() *Config {
	config := &Config{}
	configPath := os.Getenv("STAGEFLOW_CONFIG")
	if configPath == "" {
		configPath = "./etc/config.yaml"
	}

	err := readConfig(configPath, config)
	if err != nil {
		logutils.Log.Error("init config", err)
		panic(err)
	}
	applyDefaults(config)
	return config
}

func readConfig(filePath string, config *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return err
	}
	return nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == "" {
		config.Server.Port = "7330"
	}
	if config.Auth.AccessTokenExpiryHour == 0 {
		config.Auth.AccessTokenExpiryHour = 1
	}
	if config.Auth.RefreshTokenExpiryHour == 0 {
		config.Auth.RefreshTokenExpiryHour = 168
	}
	if config.Import.UploadDir == "" {
		config.Import.UploadDir = "./uploads"
	}
	if config.Import.DefaultBatchSize == 0 {
		config.Import.DefaultBatchSize = 100
	}
	if config.Import.StaleAfterMinutes == 0 {
		config.Import.StaleAfterMinutes = 30
	}
}
