// widget-probe boots a headless widget against a running deployment:
// resolve a session, optionally start a conversation and send messages,
// then print realtime events until the listen window closes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"chatdesk-backend/internal/env"
	"chatdesk-backend/internal/logger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	opt := &Options{
		APIURL:   "http://localhost:82",
		WSURL:    "ws://localhost:83",
		LogLevel: "info",
	}

	cmd := &cobra.Command{
		Use:   "widget-probe",
		Short: "Drive a headless chat widget against a chatdesk deployment",
		RunE: func(cmd *cobra.Command, arguments []string) error {
			if _, err := logger.Setup(env.LoggingConfig{Level: opt.LogLevel, Format: "console"}); err != nil {
				return err
			}
			opt.Complete()
			if err := opt.Validate(); err != nil {
				return err
			}
			return opt.Run(cmd.Context(), cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&opt.APIURL, "api", opt.APIURL, "Base URL of the widget server")
	flags.StringVar(&opt.WSURL, "ws", opt.WSURL, "Base URL of the ws server, empty disables realtime")
	flags.StringVar(&opt.WidgetKey, "widget-key", os.Getenv("CHATDESK_WIDGET_KEY"), "Public widget key")
	flags.StringVar(&opt.Origin, "origin", "", "Origin header to send, empty sends none")
	flags.StringVar(&opt.IdentityFile, "identity-file", "", "JSON file that keeps the visitor id and session token between runs")
	flags.StringVar(&opt.Department, "department", opt.Department, "Department to start a conversation in")
	flags.StringToStringVar(&opt.PreChat, "field", nil, "Pre-chat answer as id=value, repeatable")
	flags.StringVar(&opt.Name, "name", "", "Visitor name")
	flags.StringVar(&opt.Email, "email", "", "Visitor email")
	flags.StringArrayVar(&opt.Messages, "send", nil, "Message to send, repeatable")
	flags.DurationVar(&opt.Listen, "listen", 0, "How long to keep printing realtime events")
	flags.StringVar(&opt.LogLevel, "log-level", opt.LogLevel, "Log level (trace,debug,info,warn,error)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("widget probe failed")
	}
}
