package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/coupgame/coup-server-go/internal/config"
	"github.com/coupgame/coup-server-go/internal/repository"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	outPath    = flag.String("out", "", "CSV file to write (stdout when empty)")
	limit      = flag.Int("limit", 1000, "maximum number of games to export")
)

func main() {
	flag.Parse()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("database.url is not set (try COUP_DATABASE_URL)")
	}

	fmt.Fprintln(os.Stderr, "=== Coup Results Export ===")
	db, err := repository.NewDB(ctx, repository.Config{URL: cfg.Database.URL, MaxConns: 1}, zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Fprintln(os.Stderr, "✓ Database connection established")

	results, err := repository.RecentResults(ctx, db, *limit)
	if err != nil {
		log.Fatalf("Failed to load results: %v", err)
	}

	var out io.Writer = os.Stdout
	if *outPath != "" {
		file, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *outPath, err)
		}
		defer file.Close()
		out = file
	}

	if err := writeResults(out, results); err != nil {
		log.Fatalf("Failed to write CSV: %v", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Exported %d games\n", len(results))
}

func writeResults(w io.Writer, results []repository.GameResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"room_code", "winner", "players", "turns", "started_at", "ended_at", "duration"}); err != nil {
		return err
	}
	for _, res := range results {
		record := []string{
			res.RoomCode,
			res.Winner,
			strings.Join(res.Players, ";"),
			strconv.Itoa(res.Turns),
			res.StartedAt.UTC().Format(time.RFC3339),
			res.EndedAt.UTC().Format(time.RFC3339),
			res.EndedAt.Sub(res.StartedAt).Round(time.Second).String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
