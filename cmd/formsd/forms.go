package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-forms-backend/internal/formlock"
	httpapi "github.com/tbourn/go-forms-backend/internal/http"
	"github.com/tbourn/go-forms-backend/internal/repo"
	"github.com/tbourn/go-forms-backend/internal/services"
)

var errNoForms = errors.New("no form given (pass IDs or --all)")

func (a *app) fixOrderCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "fix-order [form-id...]",
		Short: "Renumber field positions 1..n, keeping their relative order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errNoForms
			}
			ctx := cmd.Context()
			d, closeDeps, err := a.deps(ctx)
			if err != nil {
				return err
			}
			defer closeDeps()

			ids := args
			if all {
				n, err := repo.CountForms(ctx, d.DB)
				if err != nil {
					return err
				}
				forms, err := repo.ListFormsPage(ctx, d.DB, 0, int(n))
				if err != nil {
					return err
				}
				ids = make([]string, 0, len(forms))
				for _, f := range forms {
					ids = append(ids, f.ID)
				}
			}

			order := services.NewOrderManager(d.DB, formlock.New(), d.Files)
			for _, id := range ids {
				if err := order.FixOrder(ctx, id); err != nil {
					return fmt.Errorf("form %s: %w", id, err)
				}
				log.Debug().Str("form_id", id).Msg("order fixed")
			}
			fmt.Fprintf(a.out, "fixed %d form(s)\n", len(ids))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Fix every form")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <form-id|alias>",
		Short: "Write a form definition as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, closeDeps, err := a.deps(ctx)
			if err != nil {
				return err
			}
			defer closeDeps()

			forms := httpapi.NewFormService(d, a.cfg.CacheTTL)
			f, err := forms.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			doc, err := forms.Export(ctx, f.ID)
			if err != nil {
				return err
			}

			w := a.out
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return services.EncodeFormDocument(w, doc)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Create a draft form from a YAML definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				r = file
			}
			doc, err := services.DecodeFormDocument(r)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			d, closeDeps, err := a.deps(ctx)
			if err != nil {
				return err
			}
			defer closeDeps()

			f, err := httpapi.NewFormService(d, a.cfg.CacheTTL).Import(ctx, doc)
			if err != nil {
				if msgs, ok := services.ValidationMessages(err); ok {
					for _, m := range msgs {
						fmt.Fprintln(cmd.ErrOrStderr(), "  -", m)
					}
				}
				return err
			}
			fmt.Fprintf(a.out, "imported %q as %s (%d fields)\n", f.Name, f.ID, len(f.Fields))
			return nil
		},
	}
}
