package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type User struct {
	ID       uint
	Username string
}
type Summary struct {
	ID          uint
	UserID      uint
	FileName    string
	SummaryText string
}

func (Summary) TableName() string { return "summaries" }

func main() {
	username := flag.String("username", "", "username")
	file := flag.String("file", "", "file name")
	flag.Parse()
	if *username == "" || *file == "" {
		log.Fatal("--username and --file required")
	}
	dsn := os.Getenv("DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DB_DSN not set in env")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	var u User
	if err := db.Where("username = ?", *username).First(&u).Error; err != nil {
		log.Fatalf("user: %v", err)
	}
	var s Summary
	err = db.Where("user_id = ? AND file_name = ?", u.ID, *file).Order("id desc").First(&s).Error
	if err != nil {
		log.Fatalf("summary: %v", err)
	}
	overview := s.SummaryText
	if i := strings.IndexByte(overview, '\n'); i >= 0 {
		overview = overview[:i]
	}
	fmt.Printf("summary id=%d file=%s overview=%q len=%d\n", s.ID, s.FileName, overview, len(s.SummaryText))
}
