package main

import (
	"fmt"
	"log"
	"os"

	"tradebot/pkg/db"
)

var tables = []string{"users", "user_data", "trade_history", "positions", "mock_trades"}

func main() {
	dbPath := "./data/tradebot.db"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	fmt.Printf("Verifying database at: %s\n", dbPath)

	database, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer database.Close()

	missing := 0
	for _, name := range tables {
		var found string
		err := database.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&found)
		if err != nil {
			fmt.Printf("MISSING %s\n", name)
			missing++
			continue
		}
		fmt.Printf("ok      %s\n", name)
	}
	if missing > 0 {
		fmt.Println("\nRun the server once, or apply migrations, to create missing tables.")
		os.Exit(1)
	}
}
