package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/versewise/versewise-server/config"
	"github.com/versewise/versewise-server/internal/database"
	"github.com/versewise/versewise-server/internal/repository"
	"github.com/versewise/versewise-server/internal/service"
)

var (
	dryRun     = flag.Bool("dry-run", true, "Dry run mode, don't actually delete accounts")
	graceHours = flag.Int("grace", service.VerifyCodeExpireHours, "Hours past link expiry to keep unverified accounts")
)

func main() {
	flag.Parse()

	log.Println("🧹 Starting cleanup task...")
	log.Printf("Mode: dry-run=%v, grace=%dh", *dryRun, *graceHours)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	userRepo := repository.NewUserRepository(db)

	// The verification link itself already carries a 24h expiry; the grace
	// window keeps the row around a while longer in case the user retries.
	cutoff := time.Now().Add(-time.Duration(*graceHours) * time.Hour)
	log.Printf("Purging unverified accounts whose link expired before %s", cutoff.Format(time.RFC3339))

	stale, err := userRepo.CountUnverifiedBefore(cutoff)
	if err != nil {
		log.Fatalf("Failed to count unverified accounts: %v", err)
	}
	log.Printf("Found %d stale unverified accounts", stale)

	if *dryRun {
		log.Println("\n⚠️  DRY RUN MODE - No accounts were actually deleted")
		log.Println("   Run with -dry-run=false to actually delete them")
		return
	}

	removed, err := userRepo.DeleteUnverifiedBefore(cutoff)
	if err != nil {
		log.Fatalf("Failed to delete unverified accounts: %v", err)
	}

	log.Printf("\n✅ Cleanup completed, removed %d accounts", removed)
}
