package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sente-go/sente/scraper/db"
	"github.com/sente-go/sente/scraper/discovery"
	"github.com/sente-go/sente/scraper/downloader"
	"github.com/sente-go/sente/scraper/logging"
	"github.com/sente-go/sente/store"
)

func main() {
	// Minimal flags (favor simplicity)
	outDir := flag.String("out-dir", getEnvOrDefault("OUT_DIR", "data/scraped"), "Directory to write batch .parquet files")
	dbPath := flag.String("db-path", getEnvOrDefault("DB_PATH", "scraper-data/games.db"), "SQLite database for raw game retention")
	logPath := flag.String("log-path", getEnvOrDefault("WRITTEN_LOG", "scraper-data/written_games.log"), "Append-only log of game IDs already written")
	flushGames := flag.Int("flush-games", getEnvIntOrDefault("FLUSH_GAMES", 1000), "Flush when buffered games reaches this count")
	flushEvery := flag.Duration("flush-every", getEnvDurationOrDefault("FLUSH_EVERY", 1*time.Hour), "Flush at this interval regardless of buffered count")
	maxPages := flag.Int("max-pages", getEnvIntOrDefault("MAX_PAGES", 10), "Maximum pagination depth per archive")
	requestDelay := flag.Duration("delay", getEnvDurationOrDefault("DELAY", 500*time.Millisecond), "Delay between HTTP requests")
	archives := flag.String("archives", getEnvOrDefault("ARCHIVES", ""), "Comma-separated archive listing URLs (default: built-in list)")
	jsonLogs := flag.Bool("json-logs", getEnvOrDefault("JSON_LOGS", "") != "", "Emit logs as indented JSON objects")

	flag.Parse()

	if *jsonLogs {
		// The default log package output is bridged through slog, so
		// the whole scraper picks this up.
		slog.SetDefault(slog.New(logging.NewPrettyJSONHandler(os.Stdout, nil)))
	}

	written, err := store.OpenWrittenLog(*logPath)
	if err != nil {
		log.Fatalf("Failed to open written log: %v", err)
	}
	defer written.Close()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.Fatalf("Failed to create db dir: %v", err)
	}
	database, err := db.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	log.Printf("Starting game scraper (Parquet + SQLite)")
	log.Printf("  Out Dir: %s", *outDir)
	log.Printf("  DB: %s", *dbPath)
	log.Printf("  Written Log: %s (%d already)", *logPath, written.Count())
	log.Printf("  Flush Games: %d", *flushGames)
	log.Printf("  Flush Every: %s", *flushEvery)
	log.Printf("  Max Pages: %d", *maxPages)
	log.Printf("  Request Delay: %s", *requestDelay)

	discConfig := discovery.DefaultConfig()
	discConfig.RequestDelay = *requestDelay
	discConfig.MaxPages = *maxPages
	if *archives != "" {
		discConfig.ArchiveURLs = strings.Split(*archives, ",")
	}

	runOnce(written, database, discConfig, *outDir, *flushGames, *flushEvery)
}

func runOnce(written *store.WrittenLog, database *db.DB, discConfig discovery.Config, outDir string, flushEveryGames int, flushEvery time.Duration) {
	if flushEveryGames <= 0 {
		flushEveryGames = 1000
	}
	if flushEvery <= 0 {
		flushEvery = 1 * time.Hour
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}
	outDir, _ = filepath.Abs(outDir)

	existingIDs, err := database.GetAllGameIDs()
	if err != nil {
		log.Fatalf("Failed to load existing game IDs: %v", err)
	}
	log.Printf("Loaded %d existing game IDs", len(existingIDs))

	dlConfig := downloader.DefaultConfig()

	discWorker := discovery.NewWorker(discConfig, existingIDs)
	gameIDChan := make(chan string, 1000)

	go func() {
		defer close(gameIDChan)
		if err := discWorker.Discover(gameIDChan); err != nil {
			log.Printf("Discovery error: %v", err)
		}
	}()

	flushTicker := time.NewTicker(flushEvery)
	defer flushTicker.Stop()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	rowsBuf := make([]store.ArchiveTurnRow, 0, 1024)
	gamesBuf := make([]string, 0, flushEveryGames)

	var gamesDownloaded int
	var gamesSkipped int
	var gamesFailed int
	var gamesAttempted int
	var batchesWritten int
	var rowsWritten int

	flush := func(reason string) {
		if len(gamesBuf) == 0 {
			return
		}
		log.Printf("Flushing batch (%s): buffered_games=%d buffered_rows=%d", reason, len(gamesBuf), len(rowsBuf))
		outPath, err := store.WriteArchiveBatchParquetAtomic(outDir, rowsBuf)
		if err != nil {
			log.Printf("Flush failed (%s): %v", reason, err)
			return
		}
		if err := written.AddMany(gamesBuf); err != nil {
			log.Printf("Flush log append failed (%s): %v", reason, err)
			// We intentionally do NOT treat this as fatal; Parquet is written.
		}
		batchesWritten++
		rowsWritten += len(rowsBuf)
		log.Printf("Flushed batch: games=%d rows=%d path=%s", len(gamesBuf), len(rowsBuf), outPath)

		rowsBuf = rowsBuf[:0]
		gamesBuf = gamesBuf[:0]
	}

	for {
		select {
		case <-sigChan:
			flush("signal")
			log.Printf("Interrupted; exiting")
			return
		case <-flushTicker.C:
			flush("ticker")
		case gameID, ok := <-gameIDChan:
			if !ok {
				flush("final")
				log.Printf("Scraping complete:")
				log.Printf("  Games attempted: %d", gamesAttempted)
				log.Printf("  Games downloaded: %d", gamesDownloaded)
				log.Printf("  Games skipped: %d", gamesSkipped)
				log.Printf("  Games failed: %d", gamesFailed)
				log.Printf("  Batches written: %d", batchesWritten)
				log.Printf("  Rows written: %d", rowsWritten)
				return
			}

			if written.Has(gameID) {
				gamesSkipped++
				continue
			}
			if exists, err := database.GameExists(gameID); err == nil && exists {
				gamesSkipped++
				continue
			}

			gamesAttempted++
			record, err := downloader.DownloadGame(gameID, dlConfig)
			if err != nil {
				gamesFailed++
				if gamesFailed%50 == 1 {
					log.Printf("Download failures=%d (latest %s: %v)", gamesFailed, gameID, err)
				}
				continue
			}
			if len(record.Moves) < 2 {
				gamesFailed++
				if gamesFailed%50 == 1 {
					log.Printf("Download failures=%d (latest %s: not enough moves=%d)", gamesFailed, gameID, len(record.Moves))
				}
				continue
			}

			// The same game can be listed under several ids; the move
			// stream checksum catches those.
			if dup, err := database.ChecksumExists(record.Checksum); err == nil && dup {
				gamesSkipped++
				continue
			}

			rows, err := downloader.BuildArchiveRows(record, "scraped")
			if err != nil {
				gamesFailed++
				if gamesFailed%50 == 1 {
					log.Printf("Row build failures=%d (latest %s: %v)", gamesFailed, gameID, err)
				}
				continue
			}

			if err := database.InsertGame(gameRecord(record), moveRows(record)); err != nil {
				log.Printf("DB insert failed for %s: %v", gameID, err)
			}

			rowsBuf = append(rowsBuf, rows...)
			gamesBuf = append(gamesBuf, gameID)
			gamesDownloaded++
			if gamesDownloaded%50 == 0 {
				log.Printf("Progress: downloaded=%d skipped=%d failed=%d buffered_games=%d buffered_rows=%d", gamesDownloaded, gamesSkipped, gamesFailed, len(gamesBuf), len(rowsBuf))
			}

			if len(gamesBuf) >= flushEveryGames {
				flush("count")
			}
		}
	}
}

func gameRecord(record *downloader.Record) db.Game {
	return db.Game{
		ID:        record.ID,
		Result:    record.Result,
		BoardSize: record.BoardSize,
		Komi:      record.Komi,
		Checksum:  record.Checksum,
		Source:    "scraped",
	}
}

func moveRows(record *downloader.Record) []db.MoveRow {
	moves := make([]db.MoveRow, 0, len(record.Moves))
	for i, move := range record.Moves {
		moves = append(moves, db.MoveRow{
			GameID: record.ID,
			Turn:   i,
			Vertex: move.String(),
		})
	}
	return moves
}

// Environment variable helpers
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
