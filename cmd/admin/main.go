// Admin CLI for operational tasks: migrations, staff accounts, application
// review, and the orphaned-object sweep.
package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/config"
	"github.com/driverdesk/driverdesk/pkg/driverdesk/mediaproc"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads the environment config and wires the service. The caller must
// defer app.Close().
func newApp(ctx context.Context) (*config.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	app, err := cfg.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("wiring service: %w", err)
	}
	return app, nil
}

var rootCmd = &cobra.Command{
	Use:   "driverdesk-admin",
	Short: "Driver intake administration tool",
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Build runs migrations for SQL backends as part of wiring.
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		fmt.Println("Migrations applied")
		return nil
	},
}

var staffAddCmd = &cobra.Command{
	Use:   "staff-add <username>",
	Short: "Create a staff account (prompts for password)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}

		role, _ := cmd.Flags().GetString("role")
		user, err := app.AuthService.Register(cmd.Context(), args[0], string(password), role)
		if err != nil {
			return fmt.Errorf("creating staff user: %w", err)
		}
		fmt.Printf("Created staff user %s (%s)\n", user.Username, user.ID)
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <application-id>",
	Short: "Approve a pending application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], driverdesk.StatusApproved)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <application-id>",
	Short: "Reject a pending application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], driverdesk.StatusRejected)
	},
}

func transition(cmd *cobra.Command, id string, status driverdesk.VerificationStatus) error {
	app, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	note, _ := cmd.Flags().GetString("note")
	updated, err := app.Service.UpdateStatus(cmd.Context(), driverdesk.UpdateStatusRequest{
		ApplicationID: id,
		Status:        status,
		Note:          note,
	})
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	fmt.Printf("Application %s is now %s\n", updated.ID, updated.Status)
	return nil
}

var hashCmd = &cobra.Command{
	Use:   "hash <file>",
	Short: "Compute the base64 MD5 required when signing an upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		maxDim, _ := cmd.Flags().GetInt("max-dim")
		pool := mediaproc.NewPool(1, nil)
		defer pool.Close()

		out, err := pool.Process(cmd.Context(), mediaproc.Job{
			Data:         data,
			MimeType:     mime.TypeByExtension(filepath.Ext(args[0])),
			MaxDimension: maxDim,
		})
		if err != nil {
			return err
		}
		result := <-out
		if result.Err != nil {
			return result.Err
		}

		fmt.Printf("md5:  %s\n", result.MD5)
		fmt.Printf("size: %d\n", result.Size)
		if result.Resized {
			fmt.Println("note: image exceeds max-dim and was recompressed; upload the processed bytes")
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep-orphans",
	Short: "Delete stored objects no manifest references",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		removed, err := app.Service.SweepOrphans(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweeping orphans: %w", err)
		}
		fmt.Printf("Removed %d orphaned objects\n", removed)
		return nil
	},
}

func init() {
	staffAddCmd.Flags().String("role", "staff", "role for the new account")
	approveCmd.Flags().String("note", "", "review note")
	rejectCmd.Flags().String("note", "", "review note")
	hashCmd.Flags().Int("max-dim", 0, "downscale images above this dimension before hashing")

	rootCmd.AddCommand(migrateCmd, staffAddCmd, approveCmd, rejectCmd, hashCmd, sweepCmd)
}
