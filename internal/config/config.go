package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL    string
	HTTPListenAddr string
	LogLevel       string
	ServiceName    string
	RegionID       string

	// CollaboratorsFile optionally overrides the collaborator endpoints
	// below from a YAML file.
	CollaboratorsFile string
	Collaborators     Collaborators

	// Saga engine tuning.
	MaxConcurrentWorkflows int
	DefaultMaxRetries      int

	// Audit archive (S3-compatible). Archiving is disabled when the
	// bucket is empty.
	ArchiveEndpoint  string
	ArchiveBucket    string
	ArchiveAccessKey string
	ArchiveSecretKey string
}

// Collaborators holds the endpoints and credentials of the four external
// systems.
type Collaborators struct {
	IPAM Endpoint `yaml:"ipam"`
	AAA  Endpoint `yaml:"aaa"`
	PON  Endpoint `yaml:"pon"`
	CPE  Endpoint `yaml:"cpe"`
}

type Endpoint struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8090"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ServiceName:       getEnv("SERVICE_NAME", "provisiond"),
		RegionID:          getEnv("REGION_ID", ""),
		CollaboratorsFile: getEnv("COLLABORATORS_FILE", ""),
		Collaborators: Collaborators{
			IPAM: Endpoint{BaseURL: getEnv("IPAM_URL", ""), APIKey: getEnv("IPAM_API_KEY", "")},
			AAA:  Endpoint{BaseURL: getEnv("AAA_URL", ""), APIKey: getEnv("AAA_API_KEY", "")},
			PON:  Endpoint{BaseURL: getEnv("PON_URL", ""), APIKey: getEnv("PON_API_KEY", "")},
			CPE:  Endpoint{BaseURL: getEnv("CPE_URL", ""), APIKey: getEnv("CPE_API_KEY", "")},
		},
		MaxConcurrentWorkflows: getEnvInt("MAX_CONCURRENT_WORKFLOWS", 16),
		DefaultMaxRetries:      getEnvInt("DEFAULT_MAX_RETRIES", 3),
		ArchiveEndpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveBucket:          getEnv("ARCHIVE_BUCKET", ""),
		ArchiveAccessKey:       getEnv("ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey:       getEnv("ARCHIVE_SECRET_KEY", ""),
	}

	if cfg.CollaboratorsFile != "" {
		if err := cfg.loadCollaborators(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	for name, ep := range map[string]Endpoint{
		"ipam": c.Collaborators.IPAM,
		"aaa":  c.Collaborators.AAA,
		"pon":  c.Collaborators.PON,
		"cpe":  c.Collaborators.CPE,
	} {
		if ep.BaseURL == "" {
			return fmt.Errorf("collaborator %s has no base URL", name)
		}
	}
	return nil
}

func (c *Config) loadCollaborators() error {
	data, err := os.ReadFile(c.CollaboratorsFile)
	if err != nil {
		return fmt.Errorf("read collaborators file: %w", err)
	}
	if err := yaml.Unmarshal(data, &c.Collaborators); err != nil {
		return fmt.Errorf("parse collaborators file: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
