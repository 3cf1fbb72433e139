// Package config loads the on-disk configuration file and layers
// environment variables on top of it. The file is read once at startup;
// internal/watcher is responsible for triggering a reload when it changes.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/llmproxy-dev/llmproxy/internal/session"
)

func logWarn(format string, args ...any) {
	log.Warnf(format, args...)
}

// QuotaExceeded mirrors the on-disk quota-exceeded sub-document, extended
// with the Gemini-CLI daily-counter path this module adds.
type QuotaExceeded struct {
	SwitchProject      bool `yaml:"switch-project"`
	SwitchPreviewModel bool `yaml:"switch-preview-model"`
}

// ModelDefault is one entry of the `model_defaults` map keyed by
// "<backend>:<model>" or a bare "<model>".
type ModelDefault struct {
	Reasoning struct {
		Effort         string `yaml:"effort"`
		Temperature    *float64 `yaml:"temperature"`
		ThinkingBudget *int   `yaml:"thinking_budget"`
	} `yaml:"reasoning"`
}

// RouteElement mirrors one element of a failover_routes entry on disk.
type RouteElement struct {
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`
}

// FailoverRoute mirrors one named failover_routes entry on disk.
type FailoverRoute struct {
	Policy   string         `yaml:"policy"`
	Elements []RouteElement `yaml:"elements"`
}

// Config is the full on-disk document plus everything env vars can set.
// The file format is YAML, a superset of the JSON shape the keys were
// originally described in, so existing JSON documents round-trip
// unchanged.
type Config struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	AuthDir  string `yaml:"auth-dir"`
	Debug    bool   `yaml:"debug"`
	ProxyURL string `yaml:"proxy-url"`

	APIKeys     []string `yaml:"api-keys"`
	DisableAuth bool     `yaml:"disable-auth"`

	DefaultBackend string `yaml:"default_backend"`

	OpenRouterAPIKeys   []string `yaml:"openrouter-api-keys"`
	OpenRouterAPIBase   string   `yaml:"openrouter-api-base-url"`
	GlAPIKey            []string `yaml:"generative-language-api-key"`
	GeminiAPIBase       string   `yaml:"gemini-api-base-url"`
	OpenAICompatAPIBase string   `yaml:"openai-compat-api-base-url"`

	GeminiCLIAuthPath   string `yaml:"gemini-cli-auth-path"`
	GeminiCLIQuotaPath  string `yaml:"gemini-cli-quota-path"`
	GeminiCLIDailyLimit int    `yaml:"gemini-cli-daily-limit"`
	ForceSetProject     bool   `yaml:"force-set-project"`
	ForceContextWindow  int    `yaml:"force-context-window"`
	ThinkingBudget      int    `yaml:"thinking-budget"`

	InteractiveMode         bool `yaml:"interactive_mode"`
	DisableInteractiveMode  bool `yaml:"disable-interactive-mode"`
	DisableInteractiveCmds  bool `yaml:"disable-interactive-commands"`
	RedactAPIKeysInPrompts  bool `yaml:"redact_api_keys_in_prompts"`
	CommandPrefix           string `yaml:"command_prefix"`

	ModelDefaults  map[string]ModelDefault  `yaml:"model_defaults"`
	FailoverRoutes map[string]FailoverRoute `yaml:"failover_routes"`

	QuotaExceeded QuotaExceeded `yaml:"quota-exceeded"`

	SessionDBPath string `yaml:"session-db-path"`
	AccountingLog string `yaml:"accounting-log-path"`

	ProxyTimeoutSeconds int `yaml:"proxy-timeout-seconds"`
}

// Load reads configFile as YAML, then layers recognized environment
// variables on top, per the numbered-vs-unnumbered precedence rule: if any
// numbered variant of a key exists, the unnumbered variant is ignored.
func Load(configFile string) (*Config, error) {
	cfg := &Config{
		Port:                8080,
		CommandPrefix:       "!/",
		GeminiCLIDailyLimit: 1000,
		ProxyTimeoutSeconds: 300,
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
		strict := yaml.NewDecoder(bytes.NewReader(data))
		strict.KnownFields(true)
		if err := strict.Decode(cfg); err != nil {
			if strings.Contains(err.Error(), "field") {
				log.Warnf("config: %s contains unrecognized keys: %v", configFile, err)
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return nil, fmt.Errorf("config: parse %s: %w", configFile, err)
				}
			} else {
				return nil, fmt.Errorf("config: parse %s: %w", configFile, err)
			}
		}
	}

	cfg.applyEnv()

	for name, route := range cfg.FailoverRoutes {
		if err := validateRoute(name, route); err != nil {
			logWarn("config: failover_routes[%s]: %v", name, err)
		}
	}

	return cfg, nil
}

// SessionRoutes converts the on-disk failover_routes document into the
// form session.Defaults expects, dropping any route that fails
// validateRoute so a malformed entry can't reach the dispatcher.
func (c *Config) SessionRoutes() map[string]session.FailoverRoute {
	out := make(map[string]session.FailoverRoute, len(c.FailoverRoutes))
	for name, r := range c.FailoverRoutes {
		if err := validateRoute(name, r); err != nil {
			continue
		}
		elements := make([]session.RouteElement, len(r.Elements))
		for i, e := range r.Elements {
			elements[i] = session.RouteElement{Backend: e.Backend, Model: e.Model}
		}
		out[name] = session.FailoverRoute{Policy: session.RoutePolicy(r.Policy), Elements: elements}
	}
	return out
}

func validateRoute(name string, r FailoverRoute) error {
	switch session.RoutePolicy(r.Policy) {
	case session.PolicyKeyFirst, session.PolicyModelFirst, session.PolicyKeyModel, session.PolicyModelKey:
	default:
		return fmt.Errorf("unrecognized policy %q", r.Policy)
	}
	if len(r.Elements) == 0 {
		return fmt.Errorf("no elements")
	}
	for i, e := range r.Elements {
		if e.Backend == "" || e.Model == "" {
			return fmt.Errorf("element %d missing backend or model", i)
		}
	}
	return nil
}

// applyEnv layers the recognized environment variables on top of cfg,
// following LLM_BACKEND, OPENROUTER_API_KEY[_N], GEMINI_API_KEY[_N],
// OPENROUTER_API_BASE_URL, GEMINI_API_BASE_URL, PROXY_HOST, PROXY_PORT,
// PROXY_TIMEOUT, COMMAND_PREFIX, DISABLE_INTERACTIVE_MODE,
// REDACT_API_KEYS_IN_PROMPTS, DISABLE_AUTH, FORCE_SET_PROJECT,
// DISABLE_INTERACTIVE_COMMANDS, FORCE_CONTEXT_WINDOW, THINKING_BUDGET.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("LLM_BACKEND"); ok {
		c.DefaultBackend = v
	}
	if keys, ok := numberedOrUnnumbered("OPENROUTER_API_KEY"); ok {
		c.OpenRouterAPIKeys = keys
	}
	if keys, ok := numberedOrUnnumbered("GEMINI_API_KEY"); ok {
		c.GlAPIKey = keys
	}
	if v, ok := os.LookupEnv("OPENROUTER_API_BASE_URL"); ok {
		c.OpenRouterAPIBase = v
	}
	if v, ok := os.LookupEnv("GEMINI_API_BASE_URL"); ok {
		c.GeminiAPIBase = v
	}
	if v, ok := os.LookupEnv("PROXY_HOST"); ok {
		c.Host = v
	}
	if v, ok := envInt("PROXY_PORT"); ok {
		c.Port = v
	}
	if v, ok := envInt("PROXY_TIMEOUT"); ok {
		c.ProxyTimeoutSeconds = v
	}
	if v, ok := os.LookupEnv("COMMAND_PREFIX"); ok {
		c.CommandPrefix = v
	}
	if v, ok := envBool("DISABLE_INTERACTIVE_MODE"); ok {
		c.DisableInteractiveMode = v
	}
	if v, ok := envBool("REDACT_API_KEYS_IN_PROMPTS"); ok {
		c.RedactAPIKeysInPrompts = v
	}
	if v, ok := envBool("DISABLE_AUTH"); ok {
		c.DisableAuth = v
	}
	if v, ok := envBool("FORCE_SET_PROJECT"); ok {
		c.ForceSetProject = v
	}
	if v, ok := envBool("DISABLE_INTERACTIVE_COMMANDS"); ok {
		c.DisableInteractiveCmds = v
	}
	if v, ok := envInt("FORCE_CONTEXT_WINDOW"); ok {
		c.ForceContextWindow = v
	}
	if v, ok := envInt("THINKING_BUDGET"); ok {
		c.ThinkingBudget = v
	}
}

// numberedOrUnnumbered collects BASE_1, BASE_2, ... in order; if none exist
// it falls back to the bare BASE variable. Returns ok=false if neither form
// is set.
func numberedOrUnnumbered(base string) ([]string, bool) {
	var numbered []string
	for i := 1; ; i++ {
		v, ok := os.LookupEnv(fmt.Sprintf("%s_%d", base, i))
		if !ok {
			break
		}
		numbered = append(numbered, v)
	}
	if len(numbered) > 0 {
		return numbered, true
	}
	if v, ok := os.LookupEnv(base); ok {
		return []string{v}, true
	}
	return nil, false
}

func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logWarn("config: %s=%q is not an integer, ignoring", name, v)
		return 0, false
	}
	return n, true
}

func envBool(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		logWarn("config: %s=%q is not a boolean, ignoring", name, v)
		return false, false
	}
	return b, true
}
