package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-forms-backend/internal/repo"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, closeDB, err := a.openDB()
			if err != nil {
				return err
			}
			defer closeDB()
			fmt.Fprintf(a.out, "schema up to date (%d tables, %s)\n", len(repo.Models()), a.cfg.DB.Driver)
			return nil
		},
	}
}
