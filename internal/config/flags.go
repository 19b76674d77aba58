package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dueskeeper/dueskeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-f string    primary state file path
//	-l string    comma-separated legacy state file paths
//	-i string    state identifier (relational row key)
//	-d string    PostgreSQL DSN
//	-r int       remote push debounce, seconds
//	-gho string  GitHub owner        -ghr string  GitHub repo
//	-ghp string  GitHub file path    -ghb string  GitHub branch
//	-ght string  GitHub token
//	-b string    S3 bucket           -k string    S3 object key
//	-g string    S3 region           -e string    S3 base endpoint
//	-u string    S3 access key       -p string    S3 secret key
//	-ta string   text-generation API key
//	-tm string   text-generation model
//	-s string    token signing key
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-f", "-l", "-i", "-d", "-r",
		"-gho", "-ghr", "-ghp", "-ghb", "-ght",
		"-b", "-k", "-g", "-e", "-u", "-p",
		"-ta", "-tm", "-s",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.StateFilePath, "f", config.StateFilePath, "primary state file path")
	legacy := fs.String("l", strings.Join(config.LegacyStatePaths, ","), "comma-separated legacy state paths")
	fs.StringVar(&config.StateID, "i", config.StateID, "state identifier")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")

	remoteDebounce := fs.Int("r", int(config.RemoteDebounce.Seconds()), "remote push debounce (in seconds)")

	fs.StringVar(&config.GitHubOwner, "gho", config.GitHubOwner, "GitHub owner")
	fs.StringVar(&config.GitHubRepo, "ghr", config.GitHubRepo, "GitHub repo")
	fs.StringVar(&config.GitHubPath, "ghp", config.GitHubPath, "GitHub file path")
	fs.StringVar(&config.GitHubBranch, "ghb", config.GitHubBranch, "GitHub branch")
	fs.StringVar(&config.GitHubToken, "ght", config.GitHubToken, "GitHub token")

	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Key, "k", config.S3Key, "S3 object key")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")

	fs.StringVar(&config.TextGenAPIKey, "ta", config.TextGenAPIKey, "text-generation API key")
	fs.StringVar(&config.TextGenModel, "tm", config.TextGenModel, "text-generation model")

	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token signing key")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RemoteDebounce = time.Duration(*remoteDebounce) * time.Second

	config.LegacyStatePaths = nil
	for _, p := range strings.Split(*legacy, ",") {
		if p = strings.TrimSpace(p); p != "" {
			config.LegacyStatePaths = append(config.LegacyStatePaths, p)
		}
	}
}
