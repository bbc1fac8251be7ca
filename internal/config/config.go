package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Jira          JiraSpecification   `yaml:"jira"`
	Github        GithubSpecification `yaml:"github"`
	Index         IndexSpecification  `yaml:"index"`
	Database      string              `yaml:"database" envconfig:"DB_URL"`
	ArchiveDir    string              `yaml:"archiveDir" split_words:"true"`
	MinScore      float64             `yaml:"minScore" split_words:"true"`
	MaxResults    int                 `yaml:"maxResults" split_words:"true"`
	LoadLimit     int                 `yaml:"loadLimit" split_words:"true"`
	SearchResults int                 `yaml:"searchResults" split_words:"true"`
	EnrichWorkers int                 `yaml:"enrichWorkers" split_words:"true"`
	LogLevel      string              `yaml:"logLevel" split_words:"true"`
	Port          int                 `yaml:"port" split_words:"true"`
	Auth          AuthSpecification   `yaml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

type JiraSpecification struct {
	BaseURL  string `yaml:"baseURL" envconfig:"BASE_URL"`
	Email    string `yaml:"email"`
	APIToken string `yaml:"apiToken" envconfig:"API_TOKEN"`
}

type GithubSpecification struct {
	Token  string `yaml:"token"`
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	APIURL string `yaml:"apiURL" envconfig:"API_URL"`
}

// IndexSpecification selects the text index backend. An empty Path with
// the sqlite driver keeps the index in memory.
type IndexSpecification struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type AuthSpecification struct {
	Enabled   bool          `yaml:"enabled"`
	JwtSecret string        `yaml:"jwtSecret" split_words:"true"`
	TokenTTL  time.Duration `yaml:"tokenTTL" envconfig:"TOKEN_TTL"`
}

const envPrefix = "RELATEDWORK"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/relatedwork.yaml",
				"config/config.yaml",
				"./relatedwork.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if err := validate(&cfg); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// ---------- helpers ----------

func validate(c *Specification) error {
	switch strings.ToLower(strings.TrimSpace(c.Index.Driver)) {
	case "", DriverSQLite:
		c.Index.Driver = DriverSQLite
	case DriverPostgres, "postgresql":
		c.Index.Driver = DriverPostgres
		if strings.TrimSpace(c.Database) == "" {
			return fmt.Errorf("%s_DB_URL is required for the postgres index driver (env/file/flag)", envPrefix)
		}
	default:
		return fmt.Errorf("unknown index driver %q (want sqlite or postgres)", c.Index.Driver)
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.JwtSecret) == "" {
		return fmt.Errorf("%s_AUTH_JWT_SECRET is required when auth is enabled", envPrefix)
	}
	if c.MaxResults < 0 || c.SearchResults < 0 || c.LoadLimit < 0 {
		return fmt.Errorf("result and load limits must not be negative")
	}
	if c.EnrichWorkers < 1 {
		c.EnrichWorkers = 1
	}
	return nil
}

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("jira-base-url", c.Jira.BaseURL, "Jira base URL (e.g., https://acme.atlassian.net)")
	fs.String("jira-email", c.Jira.Email, "Jira account email")
	fs.String("jira-api-token", c.Jira.APIToken, "Jira API token")

	fs.String("github-token", c.Github.Token, "GitHub API token")
	fs.String("github-owner", c.Github.Owner, "GitHub repository owner")
	fs.String("github-repo", c.Github.Repo, "GitHub repository name")
	fs.String("github-api-url", c.Github.APIURL, "GitHub API base URL")

	fs.String("index-driver", c.Index.Driver, "Text index backend (sqlite|postgres)")
	fs.String("index-path", c.Index.Path, "SQLite index file (empty keeps the index in memory)")
	fs.String("db-url", c.Database, "Database URL (DSN) for the postgres index")
	fs.String("archive-dir", c.ArchiveDir, "Directory of exported pull requests (offline source and cache)")

	fs.Float64("min-score", c.MinScore, "Minimum similarity score kept in results")
	fs.Int("max-results", c.MaxResults, "Maximum similar items returned")
	fs.Int("load-limit", c.LoadLimit, "Pull requests fetched per index load")
	fs.Int("search-results", c.SearchResults, "Default number of text search results")
	fs.Int("enrich-workers", c.EnrichWorkers, "Concurrent detail and change-proposal fetches")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Require a bearer token on API requests")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing tokens")
	fs.Duration("auth-token-ttl", c.Auth.TokenTTL, "Lifetime of issued tokens")

	// Used later for usage/help
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if fs.Changed(name) {
			v, _ := fs.GetDuration(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("jira-base-url", &c.Jira.BaseURL)
	setStr("jira-email", &c.Jira.Email)
	setStr("jira-api-token", &c.Jira.APIToken)

	setStr("github-token", &c.Github.Token)
	setStr("github-owner", &c.Github.Owner)
	setStr("github-repo", &c.Github.Repo)
	setStr("github-api-url", &c.Github.APIURL)

	setStr("index-driver", &c.Index.Driver)
	setStr("index-path", &c.Index.Path)
	setStr("db-url", &c.Database)
	setStr("archive-dir", &c.ArchiveDir)

	setFloat("min-score", &c.MinScore)
	setInt("max-results", &c.MaxResults)
	setInt("load-limit", &c.LoadLimit)
	setInt("search-results", &c.SearchResults)
	setInt("enrich-workers", &c.EnrichWorkers)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)

	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
	setDuration("auth-token-ttl", &c.Auth.TokenTTL)
}

func setDefaults(c *Specification) {
	c.LogLevel = "info"
	c.Github.APIURL = "https://api.github.com"
	c.Index.Driver = DriverSQLite
	c.MinScore = 1.0
	c.MaxResults = 10
	c.LoadLimit = 100
	c.SearchResults = 5
	c.EnrichWorkers = 4
	c.Port = 8080
	c.Auth.Enabled = false
	c.Auth.TokenTTL = 24 * time.Hour
}
