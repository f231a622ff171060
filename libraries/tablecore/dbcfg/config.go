// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dbcfg loads the YAML configuration of a verdb process: where the
// database lives, how to reach its cloud storage and how to log.
//
// Values may reference the environment as ${VAR} or ${VAR:-default}. Fields
// left out of the file take the defaults declared on the struct tags.
package dbcfg

import (
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/dolthub/verdb/libraries/tablecore/db"
	"github.com/dolthub/verdb/libraries/tablecore/dbfactory"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the top level configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Cache   CacheConfig   `yaml:"cache"`
}

// StorageConfig locates the database.
type StorageConfig struct {
	URL         string    `yaml:"url" default:"file://.verdb"`
	CreateDir   bool      `yaml:"create_dir" default:"true"`
	OSSEndpoint string    `yaml:"oss_endpoint,omitempty"`
	AWS         AWSConfig `yaml:"aws"`
}

// AWSConfig holds the parameters of aws:// databases.
type AWSConfig struct {
	Region    string `yaml:"region,omitempty"`
	CredsType string `yaml:"creds_type,omitempty" default:"auto"`
	CredsFile string `yaml:"creds_file,omitempty"`
	Profile   string `yaml:"profile,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"`
}

// CacheConfig sizes the fragment read cache.
type CacheConfig struct {
	Fragments int `yaml:"fragments" default:"256"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Parse interpolates the environment into |data| and decodes it strictly: unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	data, err := interpolateEnv(data)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, err
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load parses the file at |path|.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values that the YAML decoder cannot.
func (cfg *Config) Validate() error {
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	if cfg.Log.Format != LogFormatText && cfg.Log.Format != LogFormatJSON {
		return fmt.Errorf("unknown log format %q, expected %s or %s", cfg.Log.Format, LogFormatText, LogFormatJSON)
	}
	if cfg.Cache.Fragments < 0 {
		return fmt.Errorf("cache.fragments must not be negative")
	}
	if dbfactory.AWSCredentialSourceFromStr(cfg.Storage.AWS.CredsType) == dbfactory.InvalidCS {
		return fmt.Errorf("invalid aws creds_type %q, expected one of %s", cfg.Storage.AWS.CredsType, strings.Join(dbfactory.AWSCredTypes, ", "))
	}
	if _, err := dbfactory.Parse(cfg.Storage.URL); err != nil {
		return err
	}
	return nil
}

// Params returns the dbfactory creation parameters named by the storage section.
func (cfg *Config) Params() map[string]interface{} {
	params := map[string]interface{}{
		dbfactory.CreateDirParam: cfg.Storage.CreateDir,
	}

	set := func(name, val string) {
		if val != "" {
			params[name] = val
		}
	}
	set(dbfactory.OSSEndpointParam, cfg.Storage.OSSEndpoint)
	set(dbfactory.AWSRegionParam, cfg.Storage.AWS.Region)
	set(dbfactory.AWSCredsTypeParam, cfg.Storage.AWS.CredsType)
	set(dbfactory.AWSCredsFileParam, cfg.Storage.AWS.CredsFile)
	set(dbfactory.AWSCredsProfile, cfg.Storage.AWS.Profile)
	return params
}

// NewLogger returns a logger writing at the configured level and format.
func (cfg *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if cfg.Log.Format == LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// DBOptions returns database options for this configuration. The version clock comes from VERDB_VERSION_DATE.
func (cfg *Config) DBOptions(logger *logrus.Entry, reg prometheus.Registerer) (db.Options, error) {
	clock, err := ClockFromEnv()
	if err != nil {
		return db.Options{}, err
	}
	return db.Options{
		Logger:     logger,
		Registerer: reg,
		CacheSize:  cfg.Cache.Fragments,
		Clock:      clock,
	}, nil
}
