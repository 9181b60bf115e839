package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/carehub/carehub/internal/config"
	"github.com/carehub/carehub/internal/domain/records"
	"github.com/carehub/carehub/internal/platform/auth"
	"github.com/carehub/carehub/internal/platform/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "carehub-server",
		Short:        "CareHub role-scoped medical records server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}

// loadConfig reads and validates the configuration for commands that touch
// storage.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the CareHub API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the demo data set to the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, cfg.StorageBackend)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := applySchema(ctx, b, newLogger(cfg)); err != nil {
				return err
			}

			return seed(ctx, b.adapter, force, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing snapshot")
	return cmd
}

func seed(ctx context.Context, a records.Adapter, force bool, out io.Writer) error {
	existing, err := a.Load(ctx)
	if err != nil {
		return err
	}
	if existing != nil && !force {
		return fmt.Errorf("snapshot already exists; rerun with --force to overwrite it")
	}

	store := records.NewStore()
	if err := store.Restore(records.DemoSnapshot()); err != nil {
		return err
	}
	if err := a.Save(ctx, store.Snapshot()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d users, %d appointments, %d bills.\n",
		store.Users().Len(), store.Appointments().Len(), store.Billing().Len())
	return nil
}

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and move persisted snapshots",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Print the persisted snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, _ := cmd.Flags().GetString("out")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, cfg.StorageBackend)
			if err != nil {
				return err
			}
			defer b.Close()

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return export(ctx, b.adapter, out)
		},
	}
	exportCmd.Flags().String("out", "", "Write to this file instead of stdout")
	cmd.AddCommand(exportCmd)

	copyCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the snapshot from one backend to another",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			if from == to {
				return fmt.Errorf("--from and --to must differ")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			src, err := openBackend(ctx, cfg, from)
			if err != nil {
				return err
			}
			defer src.Close()
			dst, err := openBackend(ctx, cfg, to)
			if err != nil {
				return err
			}
			defer dst.Close()
			if err := applySchema(ctx, dst, newLogger(cfg)); err != nil {
				return err
			}

			snap, err := copySnapshot(ctx, src.adapter, dst.adapter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied snapshot from %s to %s (%d users, %d appointments).\n",
				from, to, len(snap.Users), len(snap.Appointments))
			return nil
		},
	}
	copyCmd.Flags().String("from", config.BackendFile, "Source backend (file or postgres)")
	copyCmd.Flags().String("to", config.BackendPostgres, "Target backend (file or postgres)")
	cmd.AddCommand(copyCmd)

	return cmd
}

func export(ctx context.Context, a records.Adapter, out io.Writer) error {
	snap, err := a.Load(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no snapshot stored")
	}
	data, err := records.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if _, err := out.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, config.BackendPostgres)
			if err != nil {
				return err
			}
			defer b.Close()

			count, err := db.NewSchemaMigrator(b.pool).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, config.BackendPostgres)
			if err != nil {
				return err
			}
			defer b.Close()

			statuses, err := db.NewSchemaMigrator(b.pool).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for a stored user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is required to issue tokens")
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, cfg.StorageBackend)
			if err != nil {
				return err
			}
			defer b.Close()

			token, err := issueToken(ctx, b.adapter, auth.JWTConfig{
				Issuer:     cfg.AuthIssuer,
				SigningKey: []byte(cfg.AuthSigningKey),
			}, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User id to issue the token for")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// issueToken signs a token carrying the stored name and role of userID, so
// the token always agrees with the user directory.
func issueToken(ctx context.Context, a records.Adapter, cfg auth.JWTConfig, userID string, ttl time.Duration) (string, error) {
	store := records.NewStore()
	if _, err := store.Load(ctx, a, true); err != nil {
		return "", err
	}
	user, err := store.Users().Get(userID)
	if err != nil {
		return "", fmt.Errorf("user %s: %w", userID, err)
	}
	return auth.IssueToken(cfg, user.ID, user.FullName, string(user.RoleName), ttl)
}
