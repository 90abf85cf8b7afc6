package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.endpoint", "https://api.openai.com")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.request_timeout", 60*time.Second)
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.max_tokens", 500)

	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.dsn", "")

	viper.SetDefault("server.bind", "127.0.0.1")
	viper.SetDefault("server.port", 8787)
	viper.SetDefault("server.max_concurrency", 8)

	viper.SetDefault("slack.base_url", "https://slack.com/api")
	viper.SetDefault("slack.client_id", "")
	viper.SetDefault("slack.client_secret", "")

	viper.SetDefault("history.limit", 5)
}
