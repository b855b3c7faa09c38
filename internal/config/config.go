package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Madgrades
	MadgradesBaseURL string
	MadgradesToken   string
	PerPage          int
	ProgressEvery    int
	HTTPTimeout      time.Duration
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration

	// Postgres
	DatabaseURL string

	// Pipeline
	DefaultSchoolName     string
	GradeFetchConcurrency int
	StagingBatchSize      int
	RewriteTimeout        time.Duration
	SubjectOverrides      map[string]string

	LogMode string

	// SFTP (report upload)
	SFTPHost                  string
	SFTPPort                  int
	SFTPUser                  string
	SFTPPass                  string
	SFTPDir                   string
	SFTPKnownHosts            string
	SFTPInsecureIgnoreHostKey bool
}

// fileConfig is the optional YAML overlay. Zero values leave env settings alone.
type fileConfig struct {
	Madgrades struct {
		BaseURL       string `yaml:"base_url"`
		PerPage       int    `yaml:"per_page"`
		ProgressEvery int    `yaml:"progress_every"`
		Timeout       string `yaml:"timeout"`
		MaxAttempts   int    `yaml:"max_attempts"`
	} `yaml:"madgrades"`
	DatabaseURL           string            `yaml:"database_url"`
	DefaultSchoolName     string            `yaml:"default_school_name"`
	GradeFetchConcurrency int               `yaml:"grade_fetch_concurrency"`
	StagingBatchSize      int               `yaml:"staging_batch_size"`
	RewriteTimeout        string            `yaml:"rewrite_timeout"`
	SubjectOverrides      map[string]string `yaml:"subject_overrides"`
}

func Load() Config {
	return Config{
		// Madgrades
		MadgradesBaseURL: getenv("MADGRADES_API_URL", "https://api.madgrades.com/v1"),
		MadgradesToken:   os.Getenv("MADGRADES_API_TOKEN"),
		PerPage:          getenvInt("MADGRADES_PER_PAGE", 100),
		ProgressEvery:    getenvInt("MADGRADES_PROGRESS_EVERY", 10),
		HTTPTimeout:      getenvDuration("MADGRADES_HTTP_TIMEOUT", 30*time.Second),
		MaxAttempts:      getenvInt("MADGRADES_MAX_ATTEMPTS", 6),
		BaseDelay:        getenvDuration("MADGRADES_BASE_DELAY", 500*time.Millisecond),
		MaxDelay:         getenvDuration("MADGRADES_MAX_DELAY", 30*time.Second),

		DatabaseURL: getenv("DATABASE_URL", postgresDSNFromParts()),

		DefaultSchoolName:     getenv("DEFAULT_SCHOOL_NAME", "University of Wisconsin-Madison"),
		GradeFetchConcurrency: getenvInt("GRADE_FETCH_CONCURRENCY", 4),
		StagingBatchSize:      getenvInt("STAGING_BATCH_SIZE", 500),
		RewriteTimeout:        getenvDuration("REWRITE_TIMEOUT", 10*time.Minute),

		LogMode: getenv("LOG_MODE", "dev"),

		SFTPHost:                  os.Getenv("SFTP_HOST"),
		SFTPPort:                  getenvInt("SFTP_PORT", 22),
		SFTPUser:                  os.Getenv("SFTP_USER"),
		SFTPPass:                  os.Getenv("SFTP_PASS"),
		SFTPDir:                   getenv("SFTP_DIR", "/"),
		SFTPKnownHosts:            os.Getenv("SFTP_KNOWN_HOSTS"),
		SFTPInsecureIgnoreHostKey: getenvBool("SFTP_INSECURE_IGNORE_HOST_KEY", false),
	}
}

// LoadFile loads env config and overlays the YAML file at path, if any.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := cfg.applyYAML(b); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyYAML(b []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return err
	}

	if fc.Madgrades.BaseURL != "" {
		c.MadgradesBaseURL = fc.Madgrades.BaseURL
	}
	if fc.Madgrades.PerPage > 0 {
		c.PerPage = fc.Madgrades.PerPage
	}
	if fc.Madgrades.ProgressEvery > 0 {
		c.ProgressEvery = fc.Madgrades.ProgressEvery
	}
	if fc.Madgrades.MaxAttempts > 0 {
		c.MaxAttempts = fc.Madgrades.MaxAttempts
	}
	if fc.Madgrades.Timeout != "" {
		d, err := time.ParseDuration(fc.Madgrades.Timeout)
		if err != nil {
			return fmt.Errorf("madgrades.timeout: %w", err)
		}
		c.HTTPTimeout = d
	}
	if fc.DatabaseURL != "" {
		c.DatabaseURL = fc.DatabaseURL
	}
	if fc.DefaultSchoolName != "" {
		c.DefaultSchoolName = fc.DefaultSchoolName
	}
	if fc.GradeFetchConcurrency > 0 {
		c.GradeFetchConcurrency = fc.GradeFetchConcurrency
	}
	if fc.StagingBatchSize > 0 {
		c.StagingBatchSize = fc.StagingBatchSize
	}
	if fc.RewriteTimeout != "" {
		d, err := time.ParseDuration(fc.RewriteTimeout)
		if err != nil {
			return fmt.Errorf("rewrite_timeout: %w", err)
		}
		c.RewriteTimeout = d
	}
	if len(fc.SubjectOverrides) > 0 {
		if c.SubjectOverrides == nil {
			c.SubjectOverrides = map[string]string{}
		}
		for k, v := range fc.SubjectOverrides {
			c.SubjectOverrides[k] = v
		}
	}
	return nil
}

func postgresDSNFromParts() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getenv("POSTGRES_USER", "postgres"),
		os.Getenv("POSTGRES_PASSWORD"),
		getenv("POSTGRES_HOST", "localhost"),
		getenv("POSTGRES_PORT", "5432"),
		getenv("POSTGRES_NAME", "coursereviews"),
		getenv("POSTGRES_SSLMODE", "disable"),
	)
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
