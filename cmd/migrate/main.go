package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"literary-archive/config"
	"literary-archive/internal/domain/staging"
	"literary-archive/internal/repository"
	"literary-archive/pkg/database"

	"gorm.io/gorm"
)

const usage = `
Literary Archive - Database CLI Tool

Usage:
  migrate [flags] [command]

Commands:
  up          Create or update the upload_staging schema
  down        Drop the upload_staging table
  status      Show connection status and staging rows per status
  reset       Drop and recreate the upload_staging schema (DANGEROUS)

Flags:
  -yes        Skip the countdown before destructive commands

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
  go run cmd/migrate/main.go -yes reset
`

func main() {
	skipCountdown := flag.Bool("yes", false, "Skip the countdown before destructive commands")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer database.Close(db)

	switch command {
	case "up":
		runMigrationsUp(db)
	case "down":
		confirm("DROP the upload_staging table", *skipCountdown)
		runMigrationsDown(db)
	case "status":
		showStatus(db)
	case "reset":
		confirm("DROP and recreate the upload_staging table", *skipCountdown)
		runMigrationsDown(db)
		runMigrationsUp(db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(db *gorm.DB) {
	log.Println("🚀 Running migrations UP...")

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func runMigrationsDown(db *gorm.DB) {
	log.Println("⬇️  Dropping upload_staging...")

	if err := repository.DropSchema(db); err != nil {
		log.Fatalf("❌ Rollback failed: %v", err)
	}

	log.Println("✅ Rollback completed successfully!")
}

type statusCount struct {
	Status string
	Count  int64
}

func showStatus(db *gorm.DB) {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(db)(context.Background()); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	if !db.Migrator().HasTable(&staging.Record{}) {
		log.Println("❌ Table upload_staging does not exist, run `migrate up`")
		return
	}

	var counts []statusCount
	if err := db.Model(&staging.Record{}).
		Select("status, count(*) AS count").
		Group("status").
		Order("status").
		Scan(&counts).Error; err != nil {
		log.Fatalf("❌ Failed to count rows: %v", err)
	}
	if len(counts) == 0 {
		log.Println("✅ Table upload_staging exists (0 rows)")
		return
	}
	for _, c := range counts {
		log.Printf("   %-16s %d", c.Status, c.Count)
	}
}

func confirm(action string, skip bool) {
	if skip {
		return
	}
	log.Printf("⚠️  WARNING: This will %s!", action)
	log.Println("⚠️  Press Ctrl+C within 5 seconds to cancel...")
	fmt.Print("Proceeding in: ")
	for i := 5; i > 0; i-- {
		fmt.Printf("%d... ", i)
		time.Sleep(time.Second)
	}
	fmt.Println()
}
