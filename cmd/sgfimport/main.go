// Command sgfimport converts SGF game records into archive parquet
// shards, so human games from other sources can feed the same training
// pipeline as scraped and self-play games.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"

	"github.com/sente-go/sente/scraper/db"
	"github.com/sente-go/sente/scraper/downloader"
	"github.com/sente-go/sente/scraper/sgf"
	"github.com/sente-go/sente/store"
)

func main() {
	inDir := flag.String("in-dir", "sgf", "Directory to scan for .sgf files")
	outDir := flag.String("out-dir", filepath.Join("data", "scraped"), "Directory to write batch .parquet files")
	dbPath := flag.String("db-path", "", "Optional SQLite database for raw game retention and dedupe")
	source := flag.String("source", "sgf", "Source tag written on every row")
	flushGames := flag.Int("flush-games", 500, "Flush when buffered games reaches this count")
	flag.Parse()

	var database *db.DB
	if *dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
			log.Fatalf("Failed to create db dir: %v", err)
		}
		var err error
		database, err = db.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
	}

	var paths []string
	err := filepath.WalkDir(*inDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".sgf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to scan %s: %v", *inDir, err)
	}
	log.Printf("Found %d SGF files under %s", len(paths), *inDir)

	var (
		imported, skipped, failed int
		batchesWritten            int
		rowsBuf                   []store.ArchiveTurnRow
	)

	flush := func() {
		if len(rowsBuf) == 0 {
			return
		}
		outPath, err := store.WriteArchiveBatchParquetAtomic(*outDir, rowsBuf)
		if err != nil {
			log.Fatalf("Failed to write batch: %v", err)
		}
		batchesWritten++
		log.Printf("Wrote %d rows to %s", len(rowsBuf), outPath)
		rowsBuf = rowsBuf[:0]
	}

	gamesInBatch := 0
	for _, path := range paths {
		record, err := loadRecord(path)
		if err != nil {
			failed++
			log.Printf("Skipping %s: %v", path, err)
			continue
		}

		if database != nil {
			if exists, err := database.GameExists(record.ID); err == nil && exists {
				skipped++
				continue
			}
			if exists, err := database.ChecksumExists(record.Checksum); err == nil && exists {
				skipped++
				continue
			}
		}

		rows, err := downloader.BuildArchiveRows(record, *source)
		if err != nil {
			failed++
			log.Printf("Skipping %s: %v", path, err)
			continue
		}

		if database != nil {
			moveRows := make([]db.MoveRow, 0, len(record.Moves))
			for i, mv := range record.Moves {
				moveRows = append(moveRows, db.MoveRow{GameID: record.ID, Turn: i, Vertex: mv.String()})
			}
			gameRecord := db.Game{
				ID:        record.ID,
				Result:    record.Result,
				BoardSize: record.BoardSize,
				Komi:      record.Komi,
				Checksum:  record.Checksum,
				Source:    *source,
				CrawledAt: time.Now(),
			}
			if err := database.InsertGame(gameRecord, moveRows); err != nil {
				log.Printf("DB insert failed for %s: %v", record.ID, err)
			}
		}

		rowsBuf = append(rowsBuf, rows...)
		imported++
		gamesInBatch++
		if gamesInBatch >= *flushGames {
			flush()
			gamesInBatch = 0
		}
	}
	flush()

	log.Printf("Import complete: imported=%d skipped=%d failed=%d batches=%d", imported, skipped, failed, batchesWritten)
}

// loadRecord parses one SGF file into the downloader's record shape so
// the same replay and row building applies.
func loadRecord(path string) (*downloader.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := sgf.Parse(string(data))
	if err != nil {
		return nil, err
	}

	checksum := xxhash.New64()
	for _, mv := range parsed.Moves {
		checksum.WriteString(mv.String() + "\n")
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &downloader.Record{
		ID:        "sgf_" + base,
		BoardSize: parsed.Size,
		Komi:      parsed.Komi,
		Result:    parsed.Result,
		Black:     parsed.Black,
		White:     parsed.White,
		Moves:     parsed.Moves,
		Checksum:  fmt.Sprintf("%016x", checksum.Sum64()),
	}, nil
}
