package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fleetops/botpanel/internal/api/http"
	"github.com/fleetops/botpanel/internal/db"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig
	Http     http.Config
	Db       db.Config
	Auth     AuthConfig     `mapstructure:"auth"`
	Slack    SlackConfig    `mapstructure:"slack"`
	N8n      N8nConfig      `mapstructure:"n8n"`
	Identity IdentityConfig `mapstructure:"identity"`
}

type AuthConfig struct {
	JwtSecret string `mapstructure:"jwt_secret"`
}

type SlackConfig struct {
	BaseUrl string `mapstructure:"base_url"`
}

type N8nConfig struct {
	BaseUrl      string `mapstructure:"base_url"`
	ApiKey       string `mapstructure:"api_key"`
	TemplatePath string `mapstructure:"template_path"`
	// ToolTemplates maps a tool name to a workflow template path; requests
	// may pick one instead of the default template.
	ToolTemplates   map[string]string `mapstructure:"tool_templates"`
	WorkflowBaseUrl string            `mapstructure:"workflow_base_url"`
}

type IdentityConfig struct {
	// Prefix is prepended to the bot name to form the host account name.
	Prefix string `mapstructure:"prefix"`
	// ChannelPrefix is prepended to the bot name to form the channel name.
	ChannelPrefix string `mapstructure:"channel_prefix"`
	// Mode selects where accounts are created: "local" runs commands on
	// this host, "ssh" runs them on the configured remote host.
	Mode           string `mapstructure:"mode"`
	SshAddr        string `mapstructure:"ssh_addr"`
	SshUser        string `mapstructure:"ssh_user"`
	SshKeyFile     string `mapstructure:"ssh_key_file"`
	KnownHostsFile string `mapstructure:"known_hosts_file"`
	// ExtraReserved lists additional account names that may never be
	// provisioned, comma separated.
	ExtraReserved string `mapstructure:"extra_reserved"`
}

var config Config

func ParseCommaSeparated(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/botpanel-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("n8n.api_key", "N8N_API_KEY")
	_ = viper.BindEnv("db.url", "DATABASE_URL")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(redacted(config), "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}

// redacted blanks secrets before the config dump.
func redacted(c Config) Config {
	if c.Auth.JwtSecret != "" {
		c.Auth.JwtSecret = "***"
	}
	if c.N8n.ApiKey != "" {
		c.N8n.ApiKey = "***"
	}
	if c.Http.AdminAPIKey != "" {
		c.Http.AdminAPIKey = "***"
	}
	if c.Db.Url != "" {
		c.Db.Url = "***"
	}
	return c
}
