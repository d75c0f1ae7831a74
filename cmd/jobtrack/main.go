package main

import (
	"os"

	"github.com/joho/godotenv"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
