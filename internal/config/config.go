// Package config loads server defaults from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/erazemk/galerija/internal/model"
)

// Config holds the server settings. Command-line flags override every field.
type Config struct {
	DBPath    string `env:"GALERIJA_DB"      envDefault:"galerija.sqlite3"`
	Addr      string `env:"GALERIJA_ADDR"    envDefault:":8080"`
	AdminUser string `env:"GALERIJA_USER"    envDefault:"Admin"`
	LogPath   string `env:"GALERIJA_LOG"`

	// Marketplace bootstrap, used only when the database is created.
	Prices  string       `env:"GALERIJA_PRICES"`
	Royalty model.Amount `env:"GALERIJA_ROYALTY" envDefault:"0"`
	Creator string       `env:"GALERIJA_CREATOR"`
	BaseURI string       `env:"GALERIJA_BASE_URI"`
}

// Load reads an optional .env file from the working directory and parses
// the environment into a Config. Variables already set in the environment
// take precedence over the file.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is like Load but reads the given dotenv files. Missing files are
// ignored.
func LoadFiles(files ...string) (*Config, error) {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// ParsePrices parses a comma-separated list of item prices such as
// "1,2.5,3". Blank entries are rejected.
func ParsePrices(s string) ([]model.Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("no prices given")
	}

	var prices []model.Amount
	for i, part := range strings.Split(s, ",") {
		price, err := model.ParseAmount(part)
		if err != nil {
			return nil, fmt.Errorf("price %d: %w", i, err)
		}
		prices = append(prices, price)
	}
	return prices, nil
}
