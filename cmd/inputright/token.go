package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jeffo777/input-right/internal/backend"
)

var tokenCmd = &cobra.Command{
	Use:   "token <tenant-id>",
	Short: "Mint a caller join token for a tenant's room",
	Long: `Mint the same token the backend's /api/token route returns, for testing a
session without the website widget.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		lk := liveKitOf(cfg)
		if lk.APIKey == "" || lk.APISecret == "" {
			return fmt.Errorf("missing configuration: livekit.api_key, livekit.api_secret")
		}

		room, _ := cmd.Flags().GetString("room")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		room = backend.RoomFor(args[0], room)
		identity := "visitor-" + uuid.NewString()

		token, err := backend.MintToken(lk, identity, backend.CallerName, backend.CallerGrant(room), ttl)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(backend.TokenResponse{
			Token:    token,
			Identity: identity,
			RoomName: room,
			URL:      lk.URL,
		})
	},
}

func init() {
	tokenCmd.Flags().String("room", "", "Room to join (default: <tenant-id>_<uuid>)")
	tokenCmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
}
