package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shipanion/gateway/config"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a starter config file with a fresh JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")
			if output == "" {
				output = defaultConfigPath
			}
			return writeStarterConfig(output, force)
		},
	}
	cmd.Flags().StringP("output", "o", "", "output config file path (default: ./"+defaultConfigPath+")")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}

func writeStarterConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
	}

	secret, err := config.GenerateRandomSecret()
	if err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}

	cfg := config.Config{
		Server: config.ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Auth: config.AuthConfig{
			Provider:  "builtin",
			JWTSecret: secret,
			JWTExpiry: config.Duration{Duration: 30 * time.Minute},
			InitialAdmin: &config.InitialAdmin{
				Username: "admin",
				Password: "change-me",
			},
		},
		Storage: config.StorageConfig{
			Driver: "sqlite",
			DSN:    "gateway.db",
		},
		Session: config.SessionConfig{
			MaxAge:        config.Duration{Duration: time.Hour},
			SweepInterval: config.Duration{Duration: 5 * time.Minute},
		},
		ShipVox: config.ShipVoxConfig{
			BaseURL: "http://localhost:8003/api",
			Timeout: config.Duration{Duration: 10 * time.Second},
			Mock:    true,
		},
		Logging: config.LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Wrote %s with a generated JWT secret.\n", path)
	fmt.Println("Change the initial admin password before exposing the gateway.")
	return nil
}
