package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

// Bootstraps the conversation tables on PostgreSQL for deployments that
// cannot rely on runtime migration. The DDL matches what the store's
// AutoMigrate produces, so running both is harmless.
func main() {
	fmt.Println("Creating SmartRAG conversation tables...")

	dsn := os.Getenv("CONVERSATION_POSTGRES_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=smartrag password=smartrag dbname=smartrag sslmode=disable"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	fmt.Println("✅ Connected to database")

	fmt.Println("Creating Conversations table...")
	createConversations := `
	CREATE TABLE IF NOT EXISTS "Conversations" (
		"SessionId" TEXT PRIMARY KEY,
		"History" TEXT,
		"CreatedAt" TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		"LastUpdated" TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`
	if _, err := db.Exec(createConversations); err != nil {
		log.Printf("Warning: Failed to create Conversations table: %v", err)
	} else {
		fmt.Println("✅ Conversations table created/verified")
	}

	fmt.Println("Creating ConversationSources table...")
	createSources := `
	CREATE TABLE IF NOT EXISTS "ConversationSources" (
		"Id" BIGSERIAL PRIMARY KEY,
		"SessionId" TEXT NOT NULL,
		"Sources" JSONB,
		"CreatedAt" TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`
	if _, err := db.Exec(createSources); err != nil {
		log.Printf("Warning: Failed to create ConversationSources table: %v", err)
	} else {
		fmt.Println("✅ ConversationSources table created/verified")
	}

	fmt.Println("Creating session index...")
	createIndex := `CREATE INDEX IF NOT EXISTS "idx_ConversationSources_SessionId"
		ON "ConversationSources" ("SessionId")`
	if _, err := db.Exec(createIndex); err != nil {
		log.Printf("Warning: Failed to create session index: %v", err)
	} else {
		fmt.Println("✅ Session index created/verified")
	}

	fmt.Println("\nAll conversation tables are ready.")
}
