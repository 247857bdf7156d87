package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"
)

type planDef struct {
	Name         string  `yaml:"name"`
	DurationDays int     `yaml:"duration_days"`
	Price        float64 `yaml:"price"`
	Currency     string  `yaml:"currency"`
	Active       *bool   `yaml:"active"`
}

func main() {
	dbPath := flag.String("db", "./data/gymbill.db", "path to SQLite database")
	plansPath := flag.String("plans", "./plans.yaml", "path to YAML file with plan definitions")
	dryRun := flag.Bool("dry-run", false, "show what would be seeded without writing to DB")
	flag.Parse()

	defs, err := loadPlans(*plansPath)
	if err != nil {
		log.Fatalf("failed to load plans: %v", err)
	}
	if len(defs) == 0 {
		log.Fatal("no plans defined in file")
	}

	db, err := sql.Open("sqlite3", *dbPath+"?_foreign_keys=on")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	var seeded, updated, errors int

	for _, def := range defs {
		if err := validatePlan(def); err != nil {
			fmt.Printf("ERROR: plan %q: %v\n", def.Name, err)
			errors++
			continue
		}

		if *dryRun {
			fmt.Printf("would seed: %s (%d days, %.2f %s)\n", def.Name, def.DurationDays, def.Price, currencyOf(def))
			seeded++
			continue
		}

		inserted, err := upsertPlan(db, def)
		if err != nil {
			fmt.Printf("ERROR: plan %q: %v\n", def.Name, err)
			errors++
			continue
		}
		if inserted {
			seeded++
		} else {
			updated++
		}
	}

	fmt.Printf("\n=== TOTAL ===\n")
	fmt.Printf("Seeded: %d\n", seeded)
	fmt.Printf("Updated: %d\n", updated)
	fmt.Printf("Errors: %d\n", errors)

	if *dryRun {
		fmt.Println("\n(DRY RUN - nothing was written to database)")
	}
	if errors > 0 {
		os.Exit(1)
	}
}

func loadPlans(path string) ([]planDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Plans []planDef `yaml:"plans"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return doc.Plans, nil
}

func validatePlan(def planDef) error {
	if def.Name == "" {
		return fmt.Errorf("name is required")
	}
	if def.DurationDays <= 0 {
		return fmt.Errorf("duration_days must be positive, got %d", def.DurationDays)
	}
	if def.Price <= 0 {
		return fmt.Errorf("price must be positive, got %.2f", def.Price)
	}
	return nil
}

func currencyOf(def planDef) string {
	if def.Currency == "" {
		return "LKR"
	}
	return def.Currency
}

func isActive(def planDef) bool {
	if def.Active == nil {
		return true
	}
	return *def.Active
}

// upsertPlan inserts the plan or refreshes an existing plan with the same
// name. Returns true when a new row was created.
func upsertPlan(db *sql.DB, def planDef) (bool, error) {
	now := time.Now().UTC()

	res, err := db.Exec(
		`UPDATE membership_plans
		 SET duration_days = ?, price = ?, currency = ?, is_active = ?, updated_at = ?
		 WHERE name = ?`,
		def.DurationDays, def.Price, currencyOf(def), isActive(def), now, def.Name,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return false, nil
	}

	_, err = db.Exec(
		`INSERT INTO membership_plans (name, duration_days, price, currency, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		def.Name, def.DurationDays, def.Price, currencyOf(def), isActive(def), now, now,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}
