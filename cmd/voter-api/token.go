package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/service"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/config"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/database"
)

func openDB() (*sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

func newTokenCmd() *cobra.Command {
	var (
		role string
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Env == config.EnvProduction {
				return fmt.Errorf("token minting is disabled in production")
			}
			if _, err := uuid.Parse(args[0]); err != nil {
				return fmt.Errorf("user id must be a UUID: %w", err)
			}
			r := models.UserRole(strings.ToUpper(role))
			switch r {
			case models.RoleVoter, models.RoleAdmin, models.RoleSuperAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := service.NewTokenService(cfg.JWT).Issue(args[0], r, name, ttl)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(models.RoleVoter), "VOTER, ADMIN or SUPERADMIN")
	cmd.Flags().StringVar(&name, "name", "", "full name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
