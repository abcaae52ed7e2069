package main

import (
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()
	Execute()
}
