package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"lessonsum/pkg/summarize"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var jwtSecret []byte // loaded from env JWT_SECRET (fallback to dev default)

// summaryMaxChars bounds the extracted text kept for summarization and
// storage. The cap keeps the prompt inside the downstream model's input
// budget; overflow is cut silently. Override with SUMMARY_MAX_CHARS.
var summaryMaxChars = 4000

func main() {
	// Load ./.env if present; values never override already-set variables.
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-insecure-secret-change" // development fallback
	}
	jwtSecret = []byte(secret)

	if v := os.Getenv("SUMMARY_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			summaryMaxChars = n
		}
	}

	// Support a lightweight migrate command: `./lessonsum migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		fmt.Println("migration and seeding completed")
		return
	}

	// A missing API key must fail here, not on the first upload.
	client, err := summarize.New(summarizeConfigFromEnv())
	if err != nil {
		log.Fatal(err)
	}
	summarizer = client

	initDB()

	r := gin.Default()

	setupRoutes(r)

	r.Run(":8081")
}

func summarizeConfigFromEnv() summarize.Config {
	cfg := summarize.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("OPENAI_MODEL"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Timeout = time.Duration(n) * time.Second
		}
	}
	return cfg
}
