package main

import (
	"github.com/joho/godotenv"

	"github.com/tytohq/aurora/cmd"
)

func main() {
	// Load .env if present; real env vars take precedence.
	_ = godotenv.Load()

	cmd.Execute()
}
