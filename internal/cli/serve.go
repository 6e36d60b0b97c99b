package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yungbote/testbridge-backend/internal/app"
)

// ServeCmd runs the HTTP API, the WebSocket hub and the task worker.
func ServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Start(); err != nil {
				return err
			}
			if port == "" {
				port = a.Cfg.Port
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- a.Run(":" + port) }()
			fmt.Printf("%s listening on :%s\n", color.New(color.FgGreen).Sprint("testbridge"), port)

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server: %w", err)
				}
				return nil
			case <-ctx.Done():
				a.Log.Info("Shutdown signal received")
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (defaults to PORT)")
	return cmd
}

// MigrateCmd creates tables, indexes and seed rows, then exits.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and seed rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			cfg, err := app.LoadConfig(log)
			if err != nil {
				return err
			}
			svc, err := app.OpenDB(log, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			fmt.Printf("%s database migrated (%s)\n", color.New(color.FgGreen).Sprint("✓"), svc.Driver())
			return nil
		},
	}
}
