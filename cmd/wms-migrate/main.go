package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goliatone/go-wms/auth"
	"github.com/goliatone/go-wms/internal/config"
	"github.com/goliatone/go-wms/internal/storage"
)

func main() {
	log.SetFlags(0)
	var (
		envFile = flag.String("env", ".env", "Path to an optional env file")
		timeout = flag.Duration("timeout", 60*time.Second, "Overall timeout")
	)
	flag.Parse()

	if len(flag.Args()) == 0 {
		log.Fatal("usage: wms-migrate [up|down|status|seed]")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := storage.Open(ctx, cfg.StorageConfig())
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "up":
		var applied []int64
		applied, err = storage.Migrate(ctx, db)
		if err == nil {
			fmt.Printf("applied %d migration(s) %v\n", len(applied), applied)
		}
	case "down":
		var version int64
		version, err = storage.Rollback(ctx, db)
		if err == nil {
			fmt.Printf("rolled back %d\n", version)
		}
	case "status":
		var states []storage.MigrationState
		states, err = storage.Status(ctx, db)
		if err == nil {
			for _, s := range states {
				state := "pending"
				if s.Applied {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%05d  %-40s %s\n", s.Version, s.Path, state)
			}
		}
	case "seed":
		err = storage.Seed(ctx, db, auth.DefaultCatalog())
		if err == nil {
			fmt.Println("role catalog seeded")
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", flag.Arg(0), err)
		cancel()
		os.Exit(1)
	}
}
