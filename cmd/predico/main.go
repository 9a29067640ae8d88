package main

import (
	"os"

	"github.com/wonny/predico/cmd/predico/commands"
)

// main is the entry point for the Predico CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/predico [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
