package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mx-space/capture/internal/config"
	"github.com/mx-space/capture/internal/pkg/jwt"
	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

// tokenCmd mints a bearer token for local testing; there is no login flow.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user id",
	RunE: func(cmd *cobra.Command, args []string) error {
		user := strings.TrimSpace(tokenUser)
		if user == "" {
			return errors.New("--user is required")
		}
		cfg, err := config.LoadOrDefault(configPath)
		if err != nil {
			return err
		}
		if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
			jwt.SetSecret(secret)
		}
		token, err := jwt.Sign(user, tokenTTL)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "Owner id embedded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
