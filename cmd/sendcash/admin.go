package main

import (
	"fmt"
	"time"

	"sendcash-backend/internal/app"
	"sendcash-backend/internal/handlers"

	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func runHashPassword(cmd *cobra.Command, args []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(hash))
	return nil
}

func runTOTPCode(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Admin.TOTPSecret == "" {
		return fmt.Errorf("admin.totpSecret is not configured")
	}
	code, err := totp.GenerateCode(cfg.Admin.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("generate TOTP code: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Current TOTP code: %s (valid for ~30s)\n", code)
	return nil
}

func runAdminToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwtSecret is not configured")
	}
	auth := handlers.NewAdminAuthHandler(cfg.Admin, app.NewLogger(cfg.Log))
	token, err := auth.GenerateToken(cfg.Admin.Username)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
