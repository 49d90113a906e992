package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"sendcash-backend/internal/config"

	_ "github.com/lib/pq"
)

// columnCheck minimum varchar width a column needs
type columnCheck struct {
	table  string
	column string
	min    int64
}

var requiredColumns = []columnCheck{
	{"payments", "tx_hash", 66},
	{"payments", "from_address", 42},
	{"payments", "to_address", 42},
	{"payments", "token_address", 42},
	{"payments", "amount", 78},
	{"payments", "fee", 78},
	{"usernames", "username", 32},
	{"usernames", "address", 42},
	{"receipts", "tx_hash", 66},
}

func main() {
	configPath := flag.String("config", "", "config file path")
	fix := flag.Bool("fix", false, "widen columns that are too small")
	flag.Parse()

	fmt.Println("🔍 Verifying database connection and column sizes...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("This check only supports the postgres driver (configured: %s)", cfg.Database.Driver)
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	failures := 0
	for _, check := range requiredColumns {
		var size sql.NullInt64
		err := sqlDB.QueryRow(`
			SELECT character_maximum_length
			FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		`, check.table, check.column).Scan(&size)
		if err == sql.ErrNoRows {
			fmt.Printf("❌ %s.%s does not exist (run `sendcash migrate`)\n", check.table, check.column)
			failures++
			continue
		}
		if err != nil {
			log.Fatalf("Failed to query %s.%s: %v", check.table, check.column, err)
		}
		if !size.Valid || size.Int64 >= check.min {
			fmt.Printf("✅ %s.%s ok\n", check.table, check.column)
			continue
		}

		fmt.Printf("❌ %s.%s is VARCHAR(%d), need VARCHAR(%d)\n", check.table, check.column, size.Int64, check.min)
		if !*fix {
			failures++
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE VARCHAR(%d)`, check.table, check.column, check.min)
		if _, err := sqlDB.Exec(stmt); err != nil {
			log.Fatalf("Failed to widen %s.%s: %v", check.table, check.column, err)
		}
		fmt.Printf("🔧 %s.%s widened to VARCHAR(%d)\n", check.table, check.column, check.min)
	}

	if failures > 0 {
		fmt.Printf("\n%d column(s) need attention\n", failures)
		os.Exit(1)
	}
	fmt.Println("\n✅ Schema looks good")
}
