package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"halfmonth/internal/core"
	"halfmonth/internal/worker"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage user accounts"}

	var email, password string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			u, err := e.auth.Register(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := e.periods.EnsureTemplates(cmd.Context(), u.ID, time.Now().Year()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "Email address")
	add.Flags().StringVar(&password, "password", "", "Password")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("password")

	cmd.AddCommand(add)
	return cmd
}

func periodsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "periods", Short: "List, copy, export and import periods"}
	cmd.AddCommand(periodsListCmd(), periodsCopyCmd(), periodsExportCmd(), periodsImportCmd())
	return cmd
}

func periodsListCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's periods, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			userID, err := e.resolveUser(cmd.Context(), user)
			if err != nil {
				return err
			}
			keys, err := e.periods.ListKeys(cmd.Context(), userID)
			if err != nil {
				return err
			}
			label := core.Labeler(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s  %s\n", k, label(k))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID or email")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func periodsCopyCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy every period from one user to another",
		Long:  "Copies all periods of --from into --to, replacing periods with the same key.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			fromID, err := e.resolveUser(cmd.Context(), from)
			if err != nil {
				return err
			}
			toID, err := e.resolveUser(cmd.Context(), to)
			if err != nil {
				return err
			}
			n, err := e.periods.CopyPeriods(cmd.Context(), fromID, toID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "copied %d periods\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Source user ID or email")
	cmd.Flags().StringVar(&to, "to", "", "Destination user ID or email")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func periodsExportCmd() *cobra.Command {
	var user, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's periods as a JSON dump",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			userID, err := e.resolveUser(cmd.Context(), user)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			n, err := e.periods.Export(cmd.Context(), userID, w)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d periods\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID or email")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file (- for stdout)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func periodsImportCmd() *cobra.Command {
	var user, file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a JSON dump into a user's periods",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			userID, err := e.resolveUser(cmd.Context(), user)
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()

			n, skipped, err := e.periods.Import(cmd.Context(), userID, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d periods\n", n)
			if len(skipped) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped malformed keys: %s\n", strings.Join(skipped, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID or email")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Dump file")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "templates", Short: "Manage January template periods"}

	var year int
	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Create missing template periods for every user",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			now := time.Now()
			if year > 0 {
				now = time.Date(year, time.January, 1, 0, 0, 0, 0, time.Local)
			}
			keeper := worker.NewTemplateKeeper(e.backend.Store, e.periods, 0)
			n, err := keeper.EnsureAll(cmd.Context(), now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ensured %d templates for %d users\n", now.Year(), n)
			return nil
		},
	}
	ensure.Flags().IntVar(&year, "year", 0, "Year (default: current year)")

	cmd.AddCommand(ensure)
	return cmd
}

func summaryCmd() *cobra.Command {
	var (
		user   string
		window string
		year   int
		months int
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print spending analytics for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if year == 0 {
				year = time.Now().Year()
			}
			w, err := core.ParseWindow(window, year, months)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			userID, err := e.resolveUser(cmd.Context(), user)
			if err != nil {
				return err
			}
			sum, err := e.periods.Analytics(cmd.Context(), userID, w)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(sum))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID or email")
	cmd.Flags().StringVar(&window, "window", "all", "Window: all, year or last")
	cmd.Flags().IntVar(&year, "year", 0, "Year for --window year (default: current year)")
	cmd.Flags().IntVar(&months, "months", 0, "Months for --window last (default 6)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
