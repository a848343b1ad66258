package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/compass-harvester/internal/server"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the control API",
	Long:  "Sign a token with server.jwt.secret (or JWT_SECRET) for clients of 'serve'.",
	RunE:  runToken,
}

var tokenSubject string

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Operator name recorded in the token")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(_ *cobra.Command, _ []string) error {
	jwtCfg := cfg.Server.JWT
	if err := jwtCfg.Ready(); err != nil {
		return err
	}
	token, err := server.NewJWTService(&jwtCfg).GenerateToken(tokenSubject)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	_, _ = fmt.Fprintln(os.Stdout, token)
	return nil
}
