package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shipanion/gateway/auth"
	"github.com/shipanion/gateway/config"
	pkgcli "github.com/shipanion/gateway/pkg/cli"
	"github.com/shipanion/gateway/store"
)

func newUserAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "useradd <username>",
		Short: "Create a user account (builtin auth only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigPath(cmd, nil, defaultConfigPath)
			return addUser(configPath, args[0])
		},
	}
}

func addUser(configPath, username string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error: %w", err)
	}
	if cfg.Auth.Provider == "jwks" {
		return fmt.Errorf("useradd is not available with the jwks auth provider, manage users in your identity provider")
	}

	db, err := store.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer func() { _ = db.Close() }()

	p := pkgcli.DefaultPrompter()
	password := p.AskPassword("Password")
	confirm := p.AskPassword("Confirm password")
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	svc := auth.NewService(db, cfg.Auth)
	user, err := svc.Register(context.Background(), username, password)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created user %s (%s)\n", user.Username, user.ID)
	return nil
}
