// The only deletion path for summary rows: the API is create-and-read only,
// so removal happens through this operator tool.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	user := flag.String("user", "", "Username to clean (optional). If empty, cleans all users.")
	dry := flag.Bool("dry-run", true, "Preview actions without modifying the DB")
	yes := flag.Bool("yes", false, "Confirm destructive action when dry-run=false")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN must be set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}

	if *user == "" {
		fmt.Println("Planned actions:")
		fmt.Println(" - DELETE FROM summaries (all rows)")
		if *dry {
			fmt.Println("dry-run: no changes made. Use --dry-run=false --yes to execute.")
			return
		}
		if !*yes {
			fmt.Println("Destructive! Pass --yes to proceed.")
			return
		}
		if err := db.Exec("DELETE FROM summaries").Error; err != nil {
			log.Fatalf("delete summaries failed: %v", err)
		}
		fmt.Println("cleanup done (global)")
		return
	}

	var userID int64
	if err := db.Raw("SELECT id FROM users WHERE username = ?", *user).Row().Scan(&userID); err != nil {
		log.Fatalf("user lookup failed for %s: %v", *user, err)
	}

	var count int64
	db.Table("summaries").Where("user_id = ?", userID).Count(&count)
	fmt.Printf("Planned actions for user %s (id=%d):\n", *user, userID)
	fmt.Printf(" - DELETE %d rows FROM summaries WHERE user_id = %d\n", count, userID)
	if *dry {
		fmt.Println("dry-run: no changes made. Use --dry-run=false --yes to execute.")
		return
	}
	if !*yes {
		fmt.Println("Destructive! Pass --yes to proceed.")
		return
	}
	if err := db.Exec(`DELETE FROM summaries WHERE user_id=?`, userID).Error; err != nil {
		log.Fatalf("delete summaries for user failed: %v", err)
	}
	fmt.Printf("cleanup done for %s\n", *user)
}
