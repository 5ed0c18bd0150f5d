package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-forms-backend/internal/auth"
	"github.com/tbourn/go-forms-backend/internal/domain"
	"github.com/tbourn/go-forms-backend/internal/services"
	"github.com/tbourn/go-forms-backend/internal/sysutil"
)

func (a *app) adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage back-office accounts",
	}
	cmd.AddCommand(a.adminBootstrapCmd(), a.adminCreateCmd())
	return cmd
}

func (a *app) users() (*services.UserService, func(), error) {
	db, closeDB, err := a.openDB()
	if err != nil {
		return nil, nil, err
	}
	issuer := auth.NewIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.JWTTTL)
	return &services.UserService{DB: db, Issuer: issuer}, closeDB, nil
}

func (a *app) adminBootstrapCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first admin account when none exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeDB, err := a.users()
			if err != nil {
				return err
			}
			defer closeDB()

			u, err := svc.Bootstrap(cmd.Context(),
				sysutil.Coalesce(username, a.cfg.Auth.AdminUsername),
				sysutil.Coalesce(password, a.cfg.Auth.AdminPassword),
			)
			if err != nil {
				return err
			}
			if u == nil {
				fmt.Fprintln(a.out, "accounts already exist or no password given; nothing to do")
				return nil
			}
			fmt.Fprintf(a.out, "created admin %s\n", u.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Admin username (default ADMIN_USERNAME)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (default ADMIN_PASSWORD)")
	return cmd
}

func (a *app) adminCreateCmd() *cobra.Command {
	var in services.UserInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeDB, err := a.users()
			if err != nil {
				return err
			}
			defer closeDB()

			u, err := svc.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "created %s %s\n", u.Role, u.Username)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Username, "username", "", "Login name")
	f.StringVar(&in.Email, "email", "", "E-mail address")
	f.StringVar(&in.FirstName, "first-name", "", "First name")
	f.StringVar(&in.LastName, "last-name", "", "Last name")
	f.StringVar(&in.Role, "role", domain.RoleEditor, "admin|editor")
	f.StringVar(&in.Password, "password", "", "Password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
