package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvMode selects production behaviour when set to "production"
const EnvMode = "YAHALOM_ENV"

// LoadDotenvIfPresent reads a local .env file during development. Existing
// environment variables win, and a missing file is not an error.
func LoadDotenvIfPresent(path string) {
	if strings.EqualFold(os.Getenv(EnvMode), "production") {
		return
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("dotenv stat error: %v", err)
		}
		return
	}

	if err := godotenv.Load(path); err != nil {
		log.Printf("dotenv load error: %v", err)
	}
}
