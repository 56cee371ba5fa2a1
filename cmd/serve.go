package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"

	"github.com/urbangrammar/demoland-assistant/internal/chat"
	"github.com/urbangrammar/demoland-assistant/internal/server"
	"github.com/urbangrammar/demoland-assistant/pkg/anthropic"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat, tool and MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		var opts []option.RequestOption
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		agent := chat.NewAgent(anthropic.NewClient(cfg.Anthropic.Key, opts...), env.Tools, cfg.AgentConfig())

		sessions := chat.NewStore(agent, chat.WithIdleTimeout(cfg.Chat.IdleTimeout()))
		go sessions.Run(ctx, time.Minute)

		srv := server.New(env.Tools, sessions, server.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MCP:            cfg.Server.MCP,
		})
		return srv.ListenAndServe(ctx, resolvePort(servePort, cfg.Server.Port))
	},
}

func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
