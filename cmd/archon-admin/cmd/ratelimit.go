package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/archoncouncil/api/internal/config"
	"github.com/archoncouncil/api/internal/infra/redis"
	"github.com/archoncouncil/api/internal/security"
)

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Manage shared rate limit state",
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset ROUTE IP",
	Short: "Clear the window and lockout of one client on one route",
	Long: `Clear the rate limit window and any lockout for IP on ROUTE.

ROUTE is one of archon-decision, auth-validate or elevenlabs-tts. Only the
redis store is shared between processes; the memory store is reset by
restarting the server.`,
	Args: cobra.ExactArgs(2),
	RunE: runRateLimitReset,
}

func init() {
	rateLimitCmd.AddCommand(rateLimitResetCmd)
}

var knownRoutes = map[string]bool{
	"archon-decision": true,
	"auth-validate":   true,
	"elevenlabs-tts":  true,
}

func runRateLimitReset(cmd *cobra.Command, args []string) error {
	route, ip := args[0], args[1]
	if !knownRoutes[route] {
		return fmt.Errorf("unknown route %q", route)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.RateLimit.Store != config.StoreRedis {
		return fmt.Errorf("rate limit store is %q: only the redis store can be reset", cfg.RateLimit.Store)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	client, err := redis.New(ctx, &cfg.Redis, newLogger())
	if err != nil {
		return err
	}
	defer client.Close()

	key := security.Key(route, ip)
	if err := redis.NewRateLimitStore(client, cfg.RateLimit.KeyPrefix).Reset(ctx, key); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rate limit state cleared for %s on %s.\n", ip, route)
	return nil
}
