package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yungbote/testbridge-backend/internal/app"
)

// StatsCmd groups project statistics maintenance.
func StatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Project statistics maintenance",
	}
	cmd.AddCommand(statsRebuildCmd())
	return cmd
}

func statsRebuildCmd() *cobra.Command {
	var projectID uint

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute project counters from rows",
		Long: `Recompute the per-project counters (suites, cases, plans, tests) from the
live rows. Without --project every project is rebuilt. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New()
			if err != nil {
				return err
			}
			defer a.Close()

			var target *uint
			if cmd.Flags().Changed("project") {
				target = &projectID
			}
			n, err := a.RebuildStats(cmd.Context(), target)
			if err != nil {
				fmt.Printf("%s %v\n", color.New(color.FgRed).Sprint("✗"), err)
				return err
			}
			fmt.Printf("%s rebuilt statistics for %d project(s)\n", color.New(color.FgGreen).Sprint("✓"), n)
			return nil
		},
	}
	cmd.Flags().UintVar(&projectID, "project", 0, "Only rebuild this project")
	return cmd
}

// UserCmd groups user administration.
func UserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User administration",
	}
	cmd.AddCommand(createSuperuserCmd())
	return cmd
}

func createSuperuserCmd() *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "create-superuser",
		Short: "Create a superuser account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New()
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.Services.User.CreateSuperuser(cmd.Context(), username, email, password)
			if err != nil {
				fmt.Printf("%s %v\n", color.New(color.FgRed).Sprint("✗"), err)
				return err
			}
			fmt.Printf("%s superuser %s created (id=%d)\n", color.New(color.FgGreen).Sprint("✓"), u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (at least 8 characters)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
