// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/rapidaai/voice-engine/pkg/connectors"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogPath  string `mapstructure:"log_path"`

	// Room server (WebRTC media plane). RoomSecret is only required when the
	// engine mints room tokens itself; deployments that pass pre-minted
	// tokens through leave it empty.
	RoomServerURL string `mapstructure:"room_server_url"`
	RoomAPIKey    string `mapstructure:"room_api_key"`
	RoomSecret    string `mapstructure:"room_secret"`

	// Provider credentials — passed through to the respective clients,
	// never interpreted here.
	DeepgramApiKey  string `mapstructure:"deepgram_api_key"`
	GoogleApiKey    string `mapstructure:"google_api_key"`
	OpenAIApiKey    string `mapstructure:"openai_api_key"`
	AnthropicApiKey string `mapstructure:"anthropic_api_key"`

	// Knowledge retrieval (optional; retrieval is skipped when unset).
	OpenSearchURL      string `mapstructure:"opensearch_url"`
	OpenSearchUsername string `mapstructure:"opensearch_username"`
	OpenSearchPassword string `mapstructure:"opensearch_password"`
	KnowledgeIndex     string `mapstructure:"knowledge_index"`

	// Usage handoff (optional).
	UsageWebhookURL string                 `mapstructure:"usage_webhook_url"`
	RecordingPath   string                 `mapstructure:"recording_path"`
	RedisConfig     connectors.RedisConfig `mapstructure:"redis"`

	// Turn generation tuning.
	SystemPrompt    string `mapstructure:"system_prompt"`
	GenerationModel string `mapstructure:"generation_model"`
	HistoryWindow   int    `mapstructure:"history_window"`
	TurnTimeoutSec  int    `mapstructure:"turn_timeout_sec"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env varaibles.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "voice-engine")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9090)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("LOG_PATH", "")

	v.SetDefault("ROOM_SERVER_URL", "")
	v.SetDefault("ROOM_API_KEY", "")
	v.SetDefault("ROOM_SECRET", "")

	v.SetDefault("DEEPGRAM_API_KEY", "")
	v.SetDefault("GOOGLE_API_KEY", "")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("ANTHROPIC_API_KEY", "")

	v.SetDefault("OPENSEARCH_URL", "")
	v.SetDefault("OPENSEARCH_USERNAME", "")
	v.SetDefault("OPENSEARCH_PASSWORD", "")
	v.SetDefault("KNOWLEDGE_INDEX", "knowledge-documents")

	v.SetDefault("USAGE_WEBHOOK_URL", "")
	v.SetDefault("RECORDING_PATH", "")
	v.SetDefault("REDIS__HOST", "localhost")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__PASSWORD", "")
	v.SetDefault("REDIS__DATABASE", 0)

	v.SetDefault("SYSTEM_PROMPT", "You are a helpful voice assistant. Keep replies short and speakable.")
	v.SetDefault("GENERATION_MODEL", "gpt-4o-mini")
	v.SetDefault("HISTORY_WINDOW", 20)
	v.SetDefault("TURN_TIMEOUT_SEC", 12)
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
