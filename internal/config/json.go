package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dueskeeper/dueskeeper/internal/flagx"
	"github.com/dueskeeper/dueskeeper/internal/timex"
)

// JsonConfig is the JSON-file rendering of Config. Interval fields use
// timex.Duration, which accepts both string values such as "15s" and integer
// nanoseconds.
type JsonConfig struct {
	StateFilePath    string         `json:"state_file_path"`
	LegacyStatePaths []string       `json:"legacy_state_paths"`
	StateID          string         `json:"state_id"`
	DatabaseDSN      string         `json:"database_dsn"`
	RemoteDebounce   timex.Duration `json:"remote_debounce"`

	GitHubOwner  string `json:"github_owner"`
	GitHubRepo   string `json:"github_repo"`
	GitHubPath   string `json:"github_path"`
	GitHubBranch string `json:"github_branch"`
	GitHubToken  string `json:"github_token"`

	S3Bucket       string `json:"s3_bucket"`
	S3Key          string `json:"s3_key"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`

	TextGenAPIKey string `json:"textgen_api_key"`
	TextGenModel  string `json:"textgen_model"`

	SecretKey string `json:"secret_key"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flags into the provided Config. When neither flag is set, nothing
// is loaded. A file that cannot be read or parsed panics: a broken config is
// a deployment error, not a runtime condition.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.StateFilePath = c.StateFilePath
	config.LegacyStatePaths = c.LegacyStatePaths
	config.StateID = c.StateID
	config.DatabaseDSN = c.DatabaseDSN
	config.RemoteDebounce = time.Duration(c.RemoteDebounce.Duration)
	config.GitHubOwner = c.GitHubOwner
	config.GitHubRepo = c.GitHubRepo
	config.GitHubPath = c.GitHubPath
	config.GitHubBranch = c.GitHubBranch
	config.GitHubToken = c.GitHubToken
	config.S3Bucket = c.S3Bucket
	config.S3Key = c.S3Key
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	config.TextGenAPIKey = c.TextGenAPIKey
	config.TextGenModel = c.TextGenModel
	config.SecretKey = c.SecretKey
}
