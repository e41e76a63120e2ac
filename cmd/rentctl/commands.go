package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"rentdesk/internal/commission"
	"rentdesk/internal/models"
	"rentdesk/internal/period"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

func newMigrateCmd(e env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := e.migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, version := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", version)
			}
			return nil
		},
	}
}

func newPeriodsCmd(e env) *cobra.Command {
	var around string
	var count int
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "List half-month settlement periods around a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at := e.now()
			if around != "" {
				parsed, err := time.Parse(period.DateLayout, around)
				if err != nil {
					return fmt.Errorf("--around must be YYYY-MM-DD")
				}
				at = parsed
			}
			if count < 1 || count > 48 {
				return fmt.Errorf("--count must be between 1 and 48")
			}
			current := period.Containing(at)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PERIOD\tSTART\tEND\tDAYS\t")
			for _, p := range period.Around(at, count) {
				marker := ""
				if p == current {
					marker = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p, p.Start().Format(period.DateLayout), p.End().Format(period.DateLayout), p.Days(), marker)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&around, "around", "", "reference date (YYYY-MM-DD), defaults to today")
	cmd.Flags().IntVar(&count, "count", 6, "number of periods to list")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash; reads the password from stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := passwordFrom(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			hash, err := hashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newCreateAgencyCmd(e env) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "create-agency",
		Short: "Create an agency with the default commission configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			cfg := models.CommissionConfig{AdminFeeBP: e.adminFee}
			if err := commission.ValidateConfig(cfg); err != nil {
				return err
			}
			st, closeStore, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			agency, err := st.CreateAgency(cmd.Context(), models.Agency{
				Name:         name,
				ContactEmail: strings.TrimSpace(email),
			}, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), agency.AgencyID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "agency name")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	return cmd
}

func newCreateUserCmd(e env) *cobra.Command {
	var agencyID, email, fullName, role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user; the password is read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agencyID = strings.TrimSpace(agencyID)
			email = strings.TrimSpace(email)
			if agencyID == "" || email == "" {
				return fmt.Errorf("--agency and --email are required")
			}
			if !models.ValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			password, err := passwordFrom(cmd.InOrStdin(), nil)
			if err != nil {
				return err
			}
			hash, err := hashPassword(password)
			if err != nil {
				return err
			}
			st, closeStore, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			user, err := st.CreateUser(cmd.Context(), models.User{
				AgencyID: agencyID,
				Role:     role,
				Email:    email,
				FullName: strings.TrimSpace(fullName),
				Active:   true,
			}, hash)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), user.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&agencyID, "agency", "", "agency id")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	cmd.Flags().StringVar(&role, "role", models.RoleAgencyAdmin, "user role")
	return cmd
}

func passwordFrom(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
