package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dpetranov/coopsched/internal/cli"
)

var rootCmd = &cobra.Command{Use: "coopsched"}

func main() {
	// .env is optional; missing files are fine.
	_ = godotenv.Load()
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
