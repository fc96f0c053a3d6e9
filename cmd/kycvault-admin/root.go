package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kycvault/internal/bootstrap"
	"kycvault/internal/platform/config"
	"kycvault/internal/platform/logger"
	"kycvault/pkg/domain"
	"kycvault/pkg/requestcontext"
)

var (
	app       *bootstrap.App
	cfg       config.Config
	log       *slog.Logger
	actorFlag string
	cancelRun context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "kycvault-admin",
	Short: "Operate a kycvault deployment",
	Long: `kycvault-admin runs maintenance and review tasks against the same
database, object store and Redis the server uses. Configuration is read from
the environment exactly as the server reads it.`,
	SilenceUsage:       true,
	PersistentPreRunE:  initializeApp,
	PersistentPostRunE: shutdownApp,
}

func init() {
	cobra.OnFinalize(closeApp)
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "kycvault-admin", "Actor recorded in audit entries")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(orphansCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(kycCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(ratelimitCmd)
	rootCmd.AddCommand(topicsCmd)
}

// needsApp reports whether cmd needs the full service graph. Migrations only
// need the database.
func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == migrateCmd {
			return false
		}
	}
	return true
}

func initializeApp(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.FromEnv()
	if err != nil {
		return err
	}
	log = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, "text")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cancelRun = cancel
	ctx = requestcontext.WithActor(ctx, actorFlag)
	cmd.SetContext(ctx)

	if !needsApp(cmd) {
		return nil
	}
	app, err = bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

// shutdownApp persists audit events recorded by a successful command.
func shutdownApp(cmd *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Flush(context.WithoutCancel(cmd.Context()))
}

// closeApp runs after every Execute, including failed ones.
func closeApp() {
	if app != nil {
		app.Close()
		app = nil
	}
	if cancelRun != nil {
		cancelRun()
		cancelRun = nil
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseOwner(s string) (domain.OwnerID, error) {
	id, err := domain.ParseOwnerID(s)
	if err != nil {
		return domain.OwnerID{}, fmt.Errorf("owner id: %w", err)
	}
	return id, nil
}
