package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/catalyst", "Catalyst data directory")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to back up the database before migration (default: <data-dir>/catalyst.db.backup)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Catalyst Database Migration Tool - servers -> workloads")
	log.Println("=======================================================")

	dbPath := filepath.Join(*dataDir, "catalyst.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Database not found at %s", dbPath)
	}

	log.Printf("Database: %s", dbPath)
	log.Printf("Dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(dbPath, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("Backup created successfully")
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := migrateServersToWorkloads(db, *dryRun); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
	} else {
		log.Println("\nMigration completed successfully.")
		log.Println("Old 'servers' bucket has been preserved for rollback.")
		log.Println("After verifying the migration you can remove it with:")
		log.Printf("  bolt db rm %s servers", dbPath)
	}
}

// migrateServersToWorkloads copies rows from the pre-rename 'servers'
// bucket into 'workloads'. Rows already present in 'workloads' are not
// overwritten, so re-running the tool is safe.
func migrateServersToWorkloads(db *bolt.DB, dryRun bool) error {
	var serverCount int
	var migratedCount int

	err := db.View(func(tx *bolt.Tx) error {
		serversBucket := tx.Bucket([]byte("servers"))
		if serversBucket == nil {
			log.Println("No 'servers' bucket found - database is already using the new schema")
			return nil
		}

		return serversBucket.ForEach(func(k, v []byte) error {
			serverCount++
			return nil
		})
	})
	if err != nil {
		return err
	}

	if serverCount == 0 {
		log.Println("No server rows found to migrate")
		return nil
	}
	log.Printf("Found %d server rows to migrate", serverCount)

	return db.Update(func(tx *bolt.Tx) error {
		if dryRun {
			log.Println("\n[DRY RUN] Would perform the following operations:")
			log.Println("1. Create 'workloads' bucket if missing")
			log.Printf("2. Copy %d rows from 'servers' to 'workloads'", serverCount)
			log.Println("3. Preserve 'servers' bucket for rollback")
			return nil
		}

		workloadsBucket, err := tx.CreateBucketIfNotExists([]byte("workloads"))
		if err != nil {
			return fmt.Errorf("failed to create workloads bucket: %w", err)
		}

		serversBucket := tx.Bucket([]byte("servers"))
		if serversBucket == nil {
			return nil
		}

		log.Println("\nMigrating servers to workloads...")
		err = serversBucket.ForEach(func(k, v []byte) error {
			var row map[string]any
			if err := json.Unmarshal(v, &row); err != nil {
				log.Printf("Warning: skipping invalid JSON for key %s: %v", k, err)
				return nil
			}
			if workloadsBucket.Get(k) != nil {
				return nil
			}
			if err := workloadsBucket.Put(k, v); err != nil {
				return fmt.Errorf("failed to copy row %s: %w", k, err)
			}
			migratedCount++
			if migratedCount%10 == 0 {
				log.Printf("  Migrated %d/%d...", migratedCount, serverCount)
			}
			return nil
		})
		if err != nil {
			return err
		}

		log.Printf("Migrated %d/%d rows to workloads", migratedCount, serverCount)
		return nil
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
