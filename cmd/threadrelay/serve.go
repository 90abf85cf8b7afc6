package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coralward/threadrelay/db"
	"github.com/coralward/threadrelay/internal/completion"
	"github.com/coralward/threadrelay/internal/httpapi"
	"github.com/coralward/threadrelay/internal/logutil"
	"github.com/coralward/threadrelay/internal/processor"
	"github.com/coralward/threadrelay/internal/slackclient"
	"github.com/coralward/threadrelay/llm"
	"github.com/coralward/threadrelay/providers/openai"
	"github.com/coralward/threadrelay/store"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack events webhook and relay pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			gdb, err := db.Open(dbConfigFromViper())
			if err != nil {
				return err
			}

			credentials := store.NewCredentials(gdb)
			conversations := store.NewConversations(gdb)
			messages := store.NewMessages(gdb)

			llmClient, err := llmClientFromViper()
			if err != nil {
				return err
			}
			comp := completion.New(llmClient, completion.Config{
				Model:          viper.GetString("llm.model"),
				Temperature:    viper.GetFloat64("llm.temperature"),
				MaxTokens:      viper.GetInt("llm.max_tokens"),
				RequestTimeout: viper.GetDuration("llm.request_timeout"),
			}, logger)

			slack := slackclient.New(nil, viper.GetString("slack.base_url"))

			proc, err := processor.New(processor.Dependencies{
				Logger:        logger,
				Credentials:   credentials,
				Conversations: conversations,
				Messages:      messages,
				Completion:    comp,
				Poster:        slack,
				HistoryLimit:  viper.GetInt("history.limit"),
			})
			if err != nil {
				return err
			}

			bind := strings.TrimSpace(flagOrViperString(cmd, "server-bind", "server.bind"))
			port := flagOrViperInt(cmd, "server-port", "server.port")
			if port <= 0 {
				port = 8787
			}
			server, err := httpapi.NewServer(logger, proc, slack, credentials, httpapi.Config{
				Bind:           bind,
				Port:           port,
				MaxConcurrency: flagOrViperInt(cmd, "max-concurrency", "server.max_concurrency"),
				ClientID:       viper.GetString("slack.client_id"),
				ClientSecret:   viper.GetString("slack.client_secret"),
			})
			if err != nil {
				return err
			}

			logger.Info("serve_start",
				"bind", bind,
				"port", port,
				"db_driver", viper.GetString("db.driver"),
				"llm_model", viper.GetString("llm.model"),
				"history_limit", viper.GetInt("history.limit"),
			)
			return server.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().String("server-bind", "", "Bind address for the webhook server.")
	cmd.Flags().Int("server-port", 0, "Port for the webhook server.")
	cmd.Flags().Int("max-concurrency", 0, "Max concurrently processed events.")
	return cmd
}

func dbConfigFromViper() db.Config {
	cfg := db.DefaultConfig()
	if driver := strings.TrimSpace(viper.GetString("db.driver")); driver != "" {
		cfg.Driver = driver
	}
	cfg.DSN = viper.GetString("db.dsn")
	if strings.EqualFold(cfg.Driver, "postgres") {
		cfg.Pool.MaxOpenConns = 10
		cfg.Pool.MaxIdleConns = 5
	}
	return cfg
}

func llmClientFromViper() (llm.Client, error) {
	provider := strings.ToLower(strings.TrimSpace(viper.GetString("llm.provider")))
	switch provider {
	case "", "openai":
		return openai.New(viper.GetString("llm.endpoint"), viper.GetString("llm.api_key")), nil
	default:
		return nil, fmt.Errorf("unknown llm.provider: %s", provider)
	}
}
