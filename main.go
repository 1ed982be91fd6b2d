package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"intent-swap/cmd"
)

func main() {
	// A .env file is optional; the environment may already carry everything.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
