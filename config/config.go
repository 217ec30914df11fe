/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/tomoncle/learnx/database"
)

// Config is the bootstrap configuration read from the process environment.
type Config struct {
	Environment string   `env:"NODE_ENV" envDefault:"development"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string   `env:"LOG_FORMAT" envDefault:"text"`
	Database    Database `envPrefix:"DB_"`
	Seed        Seed     `envPrefix:"SEED_"`
}

// Database contains connection, pool and schema sync parameters.
type Database struct {
	Dialect        string        `env:"DIALECT"`
	Host           string        `env:"HOST" envDefault:"localhost"`
	Port           int           `env:"PORT" envDefault:"5432"`
	Name           string        `env:"NAME"`
	User           string        `env:"USER" envDefault:"postgres"`
	Password       string        `env:"PASSWORD" envDefault:"password"`
	Path           string        `env:"PATH" envDefault:"./database.sqlite"`
	SSLMode        string        `env:"SSLMODE" envDefault:"disable"`
	ForceSync      bool          `env:"FORCE_SYNC" envDefault:"false"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" envDefault:"2s"`
	PoolMax        int           `env:"POOL_MAX" envDefault:"5"`
	AcquireTimeout time.Duration `env:"ACQUIRE_TIMEOUT" envDefault:"30s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"10s"`
	QueryLog       bool          `env:"QUERY_LOG" envDefault:"false"`
	SlowQuery      time.Duration `env:"SLOW_QUERY" envDefault:"2s"`
	ForeignKeyFile string        `env:"FOREIGN_KEY_FILE"`
}

// Seed contains seeding parameters.
type Seed struct {
	SQLPath   string `env:"SQL_PATH"`
	OnStartup bool   `env:"ON_STARTUP" envDefault:"false"`
}

// Load reads the given .env files, when they exist, and then the process
// environment. Variables already set in the environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Dialect != "" {
		if _, ok := database.ParseDialect(c.Database.Dialect); !ok {
			return fmt.Errorf("unsupported DB_DIALECT %q", c.Database.Dialect)
		}
	}
	if c.Database.MaxAttempts < 1 {
		return fmt.Errorf("DB_MAX_ATTEMPTS must be at least 1, got %d", c.Database.MaxAttempts)
	}
	if c.Database.PoolMax < 5 || c.Database.PoolMax > 10 {
		return fmt.Errorf("DB_POOL_MAX must be between 5 and 10, got %d", c.Database.PoolMax)
	}
	if c.Database.RetryDelay < 0 {
		return fmt.Errorf("DB_RETRY_DELAY must not be negative")
	}
	return nil
}

// ConnectionConfig maps the environment onto the connection provider's
// configuration.
func (c *Config) ConnectionConfig() *database.ConnectionConfig {
	cc := database.DefaultConnectionConfig()
	d := c.Database
	cc.Type = d.Dialect
	cc.Host = d.Host
	cc.Port = d.Port
	cc.DBName = d.Name
	cc.Username = d.User
	cc.Password = d.Password
	cc.FilePath = d.Path
	cc.SSLMode = d.SSLMode
	cc.MaxOpenConns = d.PoolMax
	cc.MaxIdleConns = d.PoolMax
	cc.ConnectTimeout = d.AcquireTimeout
	cc.ConnMaxIdleTime = d.IdleTimeout
	cc.EnableQueryLog = d.QueryLog
	cc.SlowQueryTime = d.SlowQuery
	return cc
}

// SyncOptions returns the schema sync policy for the environment.
func (c *Config) SyncOptions() database.SyncOptions {
	return database.SyncPolicy(c.Environment, c.Database.ForceSync)
}

// ForeignKeys loads the optional descriptor file.
func (c *Config) ForeignKeys() ([]database.ForeignKeyConstraint, error) {
	if c.Database.ForeignKeyFile == "" {
		return nil, nil
	}
	return database.LoadForeignKeyConfig(c.Database.ForeignKeyFile)
}
