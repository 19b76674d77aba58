// Package config handles configuration for the dueskeeper daemon,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings.
//
// Fields:
//   - StateFilePath: primary local state file (JSON document).
//   - LegacyStatePaths: older state file locations checked once at boot.
//   - StateID: logical identifier keying the relational state row.
//   - DatabaseDSN: PostgreSQL DSN (pgx); empty disables relational replication.
//   - RemoteDebounce: trailing-edge delay before a remote snapshot push.
//   - GitHub*: remote version-controlled snapshot target (contents API).
//     Empty owner/repo disables it.
//   - S3*: S3-compatible snapshot target; used when GitHub is not configured
//     and a bucket is set.
//   - TextGenAPIKey / TextGenModel: credentials for the text-generation
//     collaborator used by business features outside this core.
type Config struct {
	StateFilePath    string
	LegacyStatePaths []string
	StateID          string
	DatabaseDSN      string

	RemoteDebounce time.Duration

	GitHubOwner  string
	GitHubRepo   string
	GitHubPath   string
	GitHubBranch string
	GitHubToken  string

	S3Bucket       string
	S3Key          string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string

	TextGenAPIKey string
	TextGenModel  string

	// SecretKey signs the tokens naming actors in audit entries.
	SecretKey string
}

// LoadDefaults populates Config with sensible development defaults.
// Replication backends stay disabled until explicitly configured.
func (c *Config) LoadDefaults() {
	c.StateFilePath = "data/state.json"
	c.LegacyStatePaths = []string{"state.json", "data/db.json"}
	c.StateID = "club-main"
	c.DatabaseDSN = ""
	c.RemoteDebounce = 15 * time.Second
	c.GitHubPath = "state/members.json"
	c.GitHubBranch = "main"
	c.S3Key = "state/members.json"
	c.S3Region = "us-east-1"
	c.TextGenModel = "gemini-2.0-flash"
}

// GitHubConfigured reports whether the GitHub snapshot target is usable.
func (c *Config) GitHubConfigured() bool {
	return c.GitHubOwner != "" && c.GitHubRepo != ""
}

// S3Configured reports whether the S3 snapshot target is usable.
func (c *Config) S3Configured() bool {
	return c.S3Bucket != ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
