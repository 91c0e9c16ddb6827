package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/autoseq"
	"github.com/sells-group/maps-harvest/internal/server"
)

var (
	servePort      int
	serveNoBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the record table and harvester controls over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		deps := server.Deps{
			Records:        env.Records,
			KV:             env.KV,
			Enricher:       env.withEnricher(),
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}
		if !serveNoBrowser {
			client, err := env.withChrome(ctx)
			if err != nil {
				return err
			}
			ctrl := autoseq.New(client, env.Records, env.KV,
				autoseq.WithEnricher(env.Enricher),
				autoseq.WithTiming(autoTiming()),
			)
			if err := ctrl.Load(ctx); err != nil {
				return err
			}
			deps.Page = client
			deps.AutoSeq = ctrl
		} else {
			zap.L().Info("browser disabled; extract and auto-sequence routes unavailable")
		}

		srv := server.New(ctx, deps)
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoBrowser, "no-browser", false, "serve stored records without launching a browser")
	rootCmd.AddCommand(serveCmd)
}
