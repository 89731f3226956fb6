package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/archoncouncil/api/internal/security"
)

var checkIPCmd = &cobra.Command{
	Use:   "check-ip IP",
	Short: "Evaluate an address against the IP allowlist",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckIP,
}

// checkIPResult is the structured output of check-ip.
type checkIPResult struct {
	IP               string   `json:"ip" yaml:"ip"`
	AllowlistEnabled bool     `json:"allowlist_enabled" yaml:"allowlist_enabled"`
	Allowed          bool     `json:"allowed" yaml:"allowed"`
	MatchedBlocks    []string `json:"matched_blocks,omitempty" yaml:"matched_blocks,omitempty"`
}

func runCheckIP(cmd *cobra.Command, args []string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ip := strings.TrimSpace(args[0])
	allowlist := security.NewIPAllowlist(cfg.Security.IPAllowlistEnabled, cfg.Security.IPAllowlist, newLogger())

	res := checkIPResult{
		IP:               ip,
		AllowlistEnabled: allowlist.Enabled(),
		Allowed:          allowlist.Check(ip).Allowed(),
	}
	if res.AllowlistEnabled {
		for _, block := range cfg.Security.IPAllowlist {
			if security.MatchesCIDR(ip, block) {
				res.MatchedBlocks = append(res.MatchedBlocks, block)
			}
		}
	}

	out := cmd.OutOrStdout()
	if done, err := printStructured(out, res); done {
		return err
	}

	switch {
	case !res.AllowlistEnabled:
		fmt.Fprintf(out, "%s: allowed (allowlist disabled)\n", ip)
	case res.Allowed:
		fmt.Fprintf(out, "%s: allowed (matches %s)\n", ip, strings.Join(res.MatchedBlocks, ", "))
	default:
		fmt.Fprintf(out, "%s: blocked\n", ip)
	}
	return nil
}
