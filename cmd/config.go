package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configName = ".mythos"
	envPrefix  = "MYTHOS"
)

// LLMConfig selects the chat and embedding providers.
type LLMConfig struct {
	Provider          string `mapstructure:"provider" validate:"required,oneof=openai ollama anthropic"`
	Model             string `mapstructure:"model" validate:"required"`
	APIKey            string `mapstructure:"apiKey"`
	BaseURL           string `mapstructure:"baseUrl"`
	EmbeddingProvider string `mapstructure:"embeddingProvider" validate:"omitempty,oneof=openai ollama tei"`
	EmbeddingModel    string `mapstructure:"embeddingModel"`
}

// TelemetryConfig configures the PostHog recorder. An empty API key disables
// telemetry entirely.
type TelemetryConfig struct {
	APIKey   string `mapstructure:"apiKey"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
}

// AppConfig is the unified application configuration.
type AppConfig struct {
	DataDir   string          `mapstructure:"dataDir" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GlobalAppConfig holds the global application configuration instance.
var GlobalAppConfig AppConfig

// validate is a single instance, it caches struct info.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

func validateAppConfig(config *AppConfig) error {
	return validate.Struct(config)
}

// GetConfig returns the loaded application configuration.
func GetConfig() AppConfig {
	return GlobalAppConfig
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig() {
	// Load .env file first if present; it's fine when it doesn't exist.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix) // e.g., MYTHOS_LLM_APIKEY
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfgFileFlag := viper.GetString("config")
	if cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else {
		// Project-local config directory wins over the home directory.
		if _, err := os.Stat(configName); !os.IsNotExist(err) {
			viper.AddConfigPath(configName)
		} else {
			home, err := os.UserHomeDir()
			cobra.CheckErr(err)
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
		}
		viper.SetConfigName(configName)
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if cfgFileFlag != "" {
				fmt.Fprintln(os.Stderr, "Error: Specified config file not found:", cfgFileFlag)
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error reading config file:", viper.ConfigFileUsed(), "-", err)
		}
	}

	setConfigDefaults()

	if err := viper.Unmarshal(&GlobalAppConfig); err != nil {
		fmt.Fprintln(os.Stderr, "Error: unable to decode configuration:", err)
		os.Exit(1)
	}
	if err := validateAppConfig(&GlobalAppConfig); err != nil {
		fmt.Fprintln(os.Stderr, "Error: invalid configuration:", err)
		os.Exit(1)
	}
}

func setConfigDefaults() {
	viper.SetDefault("dataDir", configName)

	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.model", "claude-sonnet-4-20250514")
	viper.SetDefault("llm.embeddingProvider", "tei")
	viper.SetDefault("llm.embeddingModel", "Qwen/Qwen3-Embedding-8B")

	viper.SetDefault("telemetry.endpoint", "https://us.i.posthog.com")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
