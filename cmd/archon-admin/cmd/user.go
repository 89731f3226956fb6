package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/archoncouncil/api/internal/app"
	identityclient "github.com/archoncouncil/api/internal/infra/identity"
)

var (
	flagSetupEmail       string
	flagSetupPasswordEnv string
)

var setupUserCmd = &cobra.Command{
	Use:   "setup-user",
	Short: "Create the authorized user in the identity provider",
	Long: `Create the single authorized user if it does not exist yet.

The email defaults to ARCHON_AUTHORIZED_EMAIL and the password is read from
ARCHON_INITIAL_PASSWORD. An existing user is left untouched. Requires
SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY.`,
	Args: cobra.NoArgs,
	RunE: runSetupUser,
}

func init() {
	setupUserCmd.Flags().StringVar(&flagSetupEmail, "email", "", "Override the authorized email")
	setupUserCmd.Flags().StringVar(&flagSetupPasswordEnv, "password-env", "", "Read the initial password from this environment variable instead")
}

// setupUserResult is the structured output of setup-user.
type setupUserResult struct {
	UserID  string `json:"user_id" yaml:"user_id"`
	Email   string `json:"email" yaml:"email"`
	Created bool   `json:"created" yaml:"created"`
}

func runSetupUser(cmd *cobra.Command, args []string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	if !cfg.Identity.CanSignIn() {
		return fmt.Errorf("identity provider admin access not configured: set SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
	}
	client, err := identityclient.NewClient(identityclient.Config{
		URL:            cfg.Identity.URL,
		AnonKey:        cfg.Identity.AnonKey,
		ServiceRoleKey: cfg.Identity.ServiceRoleKey,
		Timeout:        cfg.Identity.Timeout,
	}, log)
	if err != nil {
		return err
	}

	email := cfg.Security.AuthorizedEmail
	if flagSetupEmail != "" {
		email = flagSetupEmail
	}
	password := cfg.Security.InitialPassword
	if flagSetupPasswordEnv != "" {
		password = os.Getenv(flagSetupPasswordEnv)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	res, err := app.NewAccountService(client, log).SetupUser(ctx, email, password)
	if err != nil {
		return err
	}
	return printSetupResult(cmd, setupUserResult{UserID: res.UserID, Email: res.Email, Created: res.Created})
}

func printSetupResult(cmd *cobra.Command, res setupUserResult) error {
	out := cmd.OutOrStdout()
	if done, err := printStructured(out, res); done {
		return err
	}
	if res.Created {
		fmt.Fprintf(out, "User %s created (id %s).\n", res.Email, res.UserID)
	} else {
		fmt.Fprintf(out, "User %s already exists (id %s).\n", res.Email, res.UserID)
	}
	return nil
}
