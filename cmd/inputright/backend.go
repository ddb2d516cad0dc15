package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeffo777/input-right/internal/backend"
	"github.com/jeffo777/input-right/internal/config"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "REST backend commands",
}

var backendServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the token and internal tenant/lead API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		store, err := backend.OpenStore(cfg.Backend.Driver, cfg.Backend.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		if cfg.API.Secret == "" {
			slog.Warn("api.secret is not set; internal routes will refuse every request")
		}
		srv, err := backend.New(backend.Config{
			Store:       store,
			Secret:      cfg.API.Secret,
			LiveKit:     liveKitOf(cfg),
			CORSOrigins: cfg.Backend.CORSOrigins,
			Logger:      slog.Default().With(slog.String("component", "backend")),
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Listen(ctx, cfg.Backend.Listen)
	},
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Tenant management commands",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a tenant in the backend database",
	Long: `Create a tenant directly in the database the backend serves from. The id
becomes the room prefix callers join under, so it must not contain "_".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		name, _ := cmd.Flags().GetString("business-name")
		kbFile, _ := cmd.Flags().GetString("knowledge-base-file")
		t := backend.Tenant{ID: args[0], BusinessName: name}
		t.ContactName, _ = cmd.Flags().GetString("contact-name")
		t.PhoneNumber, _ = cmd.Flags().GetString("phone")
		t.Email, _ = cmd.Flags().GetString("email")
		if kbFile != "" {
			kb, err := os.ReadFile(kbFile)
			if err != nil {
				return fmt.Errorf("reading knowledge base: %w", err)
			}
			t.KnowledgeBase = string(kb)
		}

		store, err := backend.OpenStore(cfg.Backend.Driver, cfg.Backend.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		created, err := store.CreateTenant(cmd.Context(), t)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(created)
	},
}

func liveKitOf(cfg *config.Config) backend.LiveKit {
	return backend.LiveKit{
		URL:       cfg.LiveKit.URL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
	}
}

func init() {
	backendServeCmd.Flags().String("listen", "", "Address to listen on (default :8000)")
	backendServeCmd.Flags().String("dsn", "", "Database DSN")
	bindFlag(backendServeCmd, "backend.listen", "listen")
	bindFlag(backendServeCmd, "backend.dsn", "dsn")

	tenantCreateCmd.Flags().String("business-name", "", "Business name the agent answers for")
	tenantCreateCmd.Flags().String("contact-name", "", "Contact person")
	tenantCreateCmd.Flags().String("phone", "", "Contact phone number")
	tenantCreateCmd.Flags().String("email", "", "Contact email")
	tenantCreateCmd.Flags().String("knowledge-base-file", "", "Text file with the business information")
	tenantCreateCmd.MarkFlagRequired("business-name")

	backendCmd.AddCommand(backendServeCmd)
	tenantCmd.AddCommand(tenantCreateCmd)
}
