package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	storeFlag      string
	verbose        bool
	migrateOnStart bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "predico",
	Short: "Predico - 협업 예측 마켓",
	Long: `Predico Unified CLI

Day-ahead 예측 마켓 백엔드.
세션 생명주기, 챌린지, 예측 제출, 앙상블 가중치, 점수 순위를 관리합니다.

Usage:
  go run ./cmd/predico [command]

Examples:
  go run ./cmd/predico api
  go run ./cmd/predico scheduler start
  go run ./cmd/predico session list
  go run ./cmd/predico migrate up`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "storage backend override (postgres|memory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before running")
}
