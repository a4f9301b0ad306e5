package admin

import (
	"errors"

	"github.com/cloo-solutions/pdfqa/internal/database"
	"github.com/spf13/cobra"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply pending migrations to the pgvector database named by PDFQA_DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("PDFQA_DATABASE_URL is not set")
			}

			dir, _ := cmd.Flags().GetString("migrations")
			return database.RunMigrations(cfg.DatabaseURL, dir)
		},
	}

	cmd.Flags().String("migrations", database.DefaultMigrationsPath, "Directory containing SQL migrations")

	return cmd
}
