package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "telematics_user"),
		dbGetEnv("DB_PASSWORD", "telematics_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "vehicle_data"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d postgres", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	// Run all steps in order
	step1_records_table(ctx, conn)
	step2_alerts_table(ctx, conn)
	step3_indexes(ctx, conn)
	step4_seed_control_keys(ctx)
	step5_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./cmd/processor")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — processed_vehicle_data table
// ─────────────────────────────────────────────────────────────
func step1_records_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: processed_vehicle_data table ────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS processed_vehicle_data (
			id                     BIGSERIAL        PRIMARY KEY,

			-- Identity
			vehicle_id             TEXT             NOT NULL,
			timestamp              TIMESTAMPTZ      NOT NULL,

			-- Raw metrics carried from the core sensor channel
			speed_kmh              DOUBLE PRECISION NOT NULL DEFAULT 0,
			engine_temp_c          DOUBLE PRECISION NOT NULL DEFAULT 0,
			fuel_level_percent     DOUBLE PRECISION NOT NULL DEFAULT 0,
			mileage_km             DOUBLE PRECISION NOT NULL DEFAULT 0,

			-- Derived health scores, all in [0,1]
			engine_health_score    DOUBLE PRECISION NOT NULL,
			brake_health_score     DOUBLE PRECISION NOT NULL,
			tire_health_score      DOUBLE PRECISION NOT NULL,
			overall_health_score   DOUBLE PRECISION NOT NULL,

			-- Derived behavior scores
			driving_aggressiveness DOUBLE PRECISION NOT NULL,
			eco_driving_score      DOUBLE PRECISION NOT NULL,
			maintenance_urgency    DOUBLE PRECISION NOT NULL,

			-- Routing flags
			maintenance_required   BOOLEAN          NOT NULL DEFAULT false,
			anomaly_detected       BOOLEAN          NOT NULL DEFAULT false,

			-- Context
			location_lat           DOUBLE PRECISION NOT NULL DEFAULT 0,
			location_lon           DOUBLE PRECISION NOT NULL DEFAULT 0,
			weather_condition      TEXT             NOT NULL DEFAULT 'unknown',
			terrain_type           TEXT             NOT NULL DEFAULT 'unknown',

			-- Server-side processing timestamp, distinct from the
			-- vehicle clock above
			processing_time        TIMESTAMPTZ      NOT NULL DEFAULT NOW()
		);
	`, "processed_vehicle_data table created")
}

// ─────────────────────────────────────────────────────────────
// Step 2 — health_alerts table
// ─────────────────────────────────────────────────────────────
func step2_alerts_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: health_alerts table ─────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS health_alerts (
			id          BIGSERIAL   PRIMARY KEY,

			vehicle_id  TEXT        NOT NULL,

			-- Must exactly match domain.AlertType constants:
			-- maintenance | anomaly
			alert_type  TEXT        NOT NULL,

			-- Must exactly match domain.AlertSeverity constants:
			-- high | medium
			severity    TEXT        NOT NULL,

			message     TEXT        NOT NULL,

			-- Vehicle timestamp of the record that derived this alert
			timestamp   TIMESTAMPTZ NOT NULL,

			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved    BOOLEAN     NOT NULL DEFAULT false,

			CONSTRAINT chk_alert_type CHECK (
				alert_type IN ('maintenance', 'anomaly')
			),
			CONSTRAINT chk_severity CHECK (
				severity IN ('high', 'medium')
			)
		);
	`, "health_alerts table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — Indexes
// ─────────────────────────────────────────────────────────────
func step3_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_processed_vehicle_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_processed_vehicle_time
				  ON processed_vehicle_data (vehicle_id, timestamp DESC);`,
			why: "query: record history for one vehicle",
		},
		{
			name: "idx_processed_maintenance",
			sql: `CREATE INDEX IF NOT EXISTS idx_processed_maintenance
				  ON processed_vehicle_data (timestamp DESC)
				  WHERE maintenance_required;`,
			why: "query: recent maintenance-flagged records (partial index)",
		},
		{
			name: "idx_alerts_vehicle",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_vehicle
				  ON health_alerts (vehicle_id, created_at DESC);`,
			why: "query: alerts for one vehicle",
		},
		{
			name: "idx_alerts_unresolved",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_unresolved
				  ON health_alerts (created_at DESC)
				  WHERE NOT resolved;`,
			why: "query: unresolved alerts only (partial index)",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 4 — Seed control-API keys into Redis
// ─────────────────────────────────────────────────────────────
func step4_seed_control_keys(ctx context.Context) {
	fmt.Println("\n── Step 4: Control-API keys ────────────────────")

	keys := os.Getenv("SEED_CONTROL_KEYS")
	if keys == "" {
		fmt.Println("  - SEED_CONTROL_KEYS not set, skipping")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     dbGetEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}

	for i, key := range splitNonEmpty(keys) {
		owner := fmt.Sprintf("ops-%d", i+1)
		if err := client.Set(ctx, "control:auth:"+key, owner, 0).Err(); err != nil {
			log.Fatalf("FAILED — seeding key for %s: %v", owner, err)
		}
		fmt.Printf("  ✓ control key seeded for %s\n", owner)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 5 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step5_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Verification ────────────────────────")

	tables := []string{"processed_vehicle_data", "health_alerts"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var indexCount int
	err := conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('processed_vehicle_data', 'health_alerts')
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitNonEmpty(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
