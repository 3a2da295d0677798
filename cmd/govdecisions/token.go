package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stake-plus/govdecisions/src/api/webserver"
	"github.com/stake-plus/govdecisions/src/data"
)

func tokenCommand() *cobra.Command {
	var name string
	var admin bool
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API token signed with the configured JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := open()
			if err != nil {
				return err
			}
			_ = data.Close(db)
			if cfg.HTTP.JWTSecret == "" {
				return errors.New("http.jwtSecret is not set")
			}
			tok, err := webserver.SignToken([]byte(cfg.HTTP.JWTSecret), args[0], name, admin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant admin routes")
	return cmd
}
