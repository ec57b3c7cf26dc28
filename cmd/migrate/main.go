package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/Santonastaso/crm-demo-sub000/internal/config"
	"github.com/Santonastaso/crm-demo-sub000/internal/repository/postgres"
	"github.com/Santonastaso/crm-demo-sub000/migrations"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load(ctx, config.ResolvePath(""))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("migrate needs the postgres driver, got %q", cfg.Database.Driver)
	}

	// The embedded schema is used unless a directory is given.
	var src fs.FS = migrations.FS
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			src = os.DirFS(a)
		}
	}

	db, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	if listOnly {
		var names []string
		if err := db.SelectContext(ctx, &names, `SELECT name FROM schema_migrations ORDER BY name`); err != nil {
			log.Fatalf("list: %v", err)
		}
		for _, n := range names {
			fmt.Println(" ", n)
		}
		fmt.Printf("Total: %d applied\n", len(names))
		return
	}

	applied, err := postgres.Migrate(ctx, db, src)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("Done: %d applied", len(applied))
	log.Println("Migrations complete")
}
