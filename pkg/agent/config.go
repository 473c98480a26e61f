package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/txn2/dbms-agent/pkg/bridge"
	"github.com/txn2/dbms-agent/pkg/localexec"
	"github.com/txn2/dbms-agent/pkg/schema"
)

// Environment variables consulted when the config file leaves fields
// empty. These match the bridge deployment surface.
const (
	envBridgeBaseURL = "MCP_HTTP_BASE_URL"
	envBridgeAPIKey  = "MCP_HTTP_API_KEY"
	envPreferRemote  = "USE_REMOTE_MCP"
)

// Config holds the complete agent configuration.
type Config struct {
	Bridge bridge.Config    `yaml:"bridge"`
	Local  localexec.Config `yaml:"local"`

	// PreferRemote selects the remote bridge even when a local connection
	// is available. When unset in config, the USE_REMOTE_MCP environment
	// toggle decides.
	PreferRemote *bool `yaml:"prefer_remote"`

	Embeddings schema.EmbedderConfig `yaml:"embeddings"`
}

// LoadConfig reads the YAML config file and applies environment
// fallbacks. An empty path yields an environment-only config.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv fills empty fields from the environment.
func (c *Config) applyEnv() {
	if c.Bridge.BaseURL == "" {
		c.Bridge.BaseURL = os.Getenv(envBridgeBaseURL)
	}
	if c.Bridge.APIKey == "" {
		c.Bridge.APIKey = os.Getenv(envBridgeAPIKey)
	}
	if c.PreferRemote == nil {
		if v, ok := os.LookupEnv(envPreferRemote); ok {
			prefer := isTruthy(v)
			c.PreferRemote = &prefer
		}
	}
}

// RemotePreferred resolves the prefer-remote flag; unset means false.
func (c *Config) RemotePreferred() bool {
	return c.PreferRemote != nil && *c.PreferRemote
}

// Validate enforces construction-time requirements. A missing bridge base
// address when remote execution is explicitly preferred is a hard failure.
func (c *Config) Validate() error {
	if c.RemotePreferred() && c.Bridge.BaseURL == "" {
		return fmt.Errorf("remote execution preferred but no bridge base URL configured (set bridge.base_url or %s)", envBridgeBaseURL)
	}
	return nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
