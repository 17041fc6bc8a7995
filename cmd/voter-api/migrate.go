package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := database.MigrateUp(db.DB)
			if err != nil {
				return err
			}
			cmd.Printf("applied %d migration(s)\n", n)
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := database.MigrateDown(db.DB, steps)
			if err != nil {
				return err
			}
			cmd.Printf("rolled back %d migration(s)\n", n)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}
