package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/predico/pkg/database"
	"github.com/wonny/predico/pkg/logger"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 마이그레이션",
	Long: `내장된 SQL 마이그레이션을 적용하거나 조회합니다.

Example:
  go run ./cmd/predico migrate up
  go run ./cmd/predico migrate list`,
}

var (
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "대기 중인 마이그레이션 적용",
		RunE:  runMigrateUp,
	}

	migrateListCmd = &cobra.Command{
		Use:   "list",
		Short: "내장된 마이그레이션 목록",
		RunE:  runMigrateList,
	}
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateListCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	applied, err := db.Migrate(cmd.Context(), log)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Applied %d migration(s)\n", applied)
	return nil
}

func runMigrateList(cmd *cobra.Command, args []string) error {
	names, err := database.MigrationNames()
	if err != nil {
		return err
	}

	fmt.Println("Embedded migrations:")
	for _, name := range names {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}
