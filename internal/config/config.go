package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBase        = "http://localhost:8000"
	DefaultChatPath       = "/v1/chat/demo"
	DefaultWSEndpoint     = "ws://localhost:8000/ws/chat"
	DefaultModelOptions   = "gpt-3.5-turbo,gpt-4o,gpt-4o-mini"
	DefaultRequestTimeout = 60 * time.Second
	DefaultReconnectDelay = 3 * time.Second
	DefaultSystemPrompt   = "You are DocuChat, a helpful assistant. Answer in Persian unless the user writes in another language."
)

// Config is loaded once at startup and shared by every controller. Nothing
// mutates it once the controllers are built.
type Config struct {
	APIBase              string        `mapstructure:"api_base" yaml:"api_base"`
	ChatPath             string        `mapstructure:"chat_path" yaml:"chat_path"`
	WSEndpoint           string        `mapstructure:"ws_endpoint" yaml:"ws_endpoint"`
	ModelOptions         string        `mapstructure:"model_options" yaml:"model_options"`
	DefaultModel         string        `mapstructure:"default_model" yaml:"default_model"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout" yaml:"-"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay" yaml:"-"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	Features             Features      `mapstructure:"-" yaml:",inline"`
	Serve                ServeConfig   `mapstructure:"serve" yaml:"serve"`

	// Models is ModelOptions after validation against the registry.
	Models []string `mapstructure:"-" yaml:"-"`
}

// Features are the deployment-time switches. They never change while the
// process runs.
type Features struct {
	Streaming bool `yaml:"enable_ws"`
	Upload    bool `yaml:"enable_pdf_upload"`
	Sharing   bool `yaml:"enable_team_sharing"`
}

// ServeConfig configures the development backend started by `docuchat serve`.
type ServeConfig struct {
	Addr          string  `mapstructure:"addr" yaml:"addr"`
	Provider      string  `mapstructure:"provider" yaml:"provider"`
	OpenAIAPIKey  string  `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	OpenAIBaseURL string  `mapstructure:"openai_base_url" yaml:"openai_base_url,omitempty"`
	SystemPrompt  string  `mapstructure:"system_prompt" yaml:"system_prompt"`
	RateLimit     float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst     int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// ChatURL is the full request/response endpoint.
func (c *Config) ChatURL() string {
	return strings.TrimRight(c.APIBase, "/") + c.ChatPath
}

// Default returns a configuration with every default applied, as if no file
// or environment variable were present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// Load reads the config file (explicitPath, or config.yaml from the user
// config directory or the working directory) and applies DOCUCHAT_*
// environment overrides. A missing file is not an error.
func Load(explicitPath string) (*Config, error) {
	return load(viper.New(), explicitPath)
}

func load(v *viper.Viper, explicitPath string) (*Config, error) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("DOCUCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(explicitPath == "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Features = Features{
		Streaming: parseFlag(v.GetString("enable_ws")),
		Upload:    parseFlag(v.GetString("enable_pdf_upload")),
		Sharing:   parseFlag(v.GetString("enable_team_sharing")),
	}

	key, err := resolveSecret(cfg.Serve.OpenAIAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve serve.openai_api_key: %w", err)
	}
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Serve.OpenAIAPIKey = key

	cfg.normalize()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base", DefaultAPIBase)
	v.SetDefault("chat_path", DefaultChatPath)
	v.SetDefault("ws_endpoint", DefaultWSEndpoint)
	v.SetDefault("enable_ws", false)
	v.SetDefault("enable_pdf_upload", false)
	v.SetDefault("enable_team_sharing", false)
	v.SetDefault("model_options", DefaultModelOptions)
	v.SetDefault("default_model", models.Default)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("reconnect_delay", DefaultReconnectDelay)
	v.SetDefault("max_reconnect_attempts", 0)

	v.SetDefault("serve.addr", ":8000")
	v.SetDefault("serve.provider", "echo")
	v.SetDefault("serve.openai_api_key", "")
	v.SetDefault("serve.openai_base_url", "")
	v.SetDefault("serve.system_prompt", DefaultSystemPrompt)
	v.SetDefault("serve.rate_limit", 5.0)
	v.SetDefault("serve.rate_burst", 10)
}

// normalize replaces invalid values with defaults. Bad configuration never
// stops the client from starting.
func (c *Config) normalize() {
	if strings.TrimSpace(c.APIBase) == "" {
		c.APIBase = DefaultAPIBase
	}
	if c.ChatPath == "" {
		c.ChatPath = DefaultChatPath
	}
	if !strings.HasPrefix(c.ChatPath, "/") {
		c.ChatPath = "/" + c.ChatPath
	}
	if strings.TrimSpace(c.WSEndpoint) == "" {
		c.WSEndpoint = DefaultWSEndpoint
	}
	c.Models = models.ParseList(c.ModelOptions)
	c.ModelOptions = strings.Join(c.Models, ",")
	c.DefaultModel = models.Sanitize(strings.TrimSpace(c.DefaultModel))
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if c.Serve.Provider == "" {
		c.Serve.Provider = "echo"
	}
	if c.Serve.RateLimit <= 0 {
		c.Serve.RateLimit = 5
	}
	if c.Serve.RateBurst <= 0 {
		c.Serve.RateBurst = 10
	}
}

func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docuchat"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config dir: %w", err)
	}
	return filepath.Join(dir, "docuchat"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Exists reports whether a config file is present at path, or at
// GetConfigPath when path is empty.
func Exists(path string) bool {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return false
		}
		path = p
	}
	_, err := os.Stat(path)
	return err == nil
}

// fileView is the on-disk shape. Durations are written in their string form
// so the file stays hand-editable.
type fileView struct {
	Config         `yaml:",inline"`
	RequestTimeout string `yaml:"request_timeout"`
	ReconnectDelay string `yaml:"reconnect_delay"`
}

// Marshal renders cfg as YAML. The OpenAI key is never written out.
func Marshal(cfg *Config) ([]byte, error) {
	out := *cfg
	out.Serve.OpenAIAPIKey = ""
	return yaml.Marshal(fileView{
		Config:         out,
		RequestTimeout: out.RequestTimeout.String(),
		ReconnectDelay: out.ReconnectDelay.String(),
	})
}

// Update writes changes into the config file at path (GetConfigPath when
// empty) and leaves every other entry as the file has it. The file is read
// without defaults or environment overrides, so DOCUCHAT_* values and
// resolved secrets never end up on disk.
func Update(path string, changes map[string]any) error {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetConfigPermissions(0600)
	if Exists(path) {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	for key, value := range changes {
		v.Set(key, value)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
