// Package db stores downloaded game records in SQLite so games are
// never fetched or converted twice.
package db

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection with thread-safe operations
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Game represents a scraped game record
type Game struct {
	ID          string
	Result      string
	BoardSize   int
	Komi        float64
	Checksum    string
	Source      string
	CrawledAt   time.Time
	IsProcessed bool
}

// MoveRow is a single move of a stored game, in GTP vertex notation.
type MoveRow struct {
	GameID string
	Turn   int
	Vertex string
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite only supports one writer
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// initSchema creates the required tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	-- Table to track unique games and avoid re-downloading
	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,            -- Server-side game id
		result TEXT,                    -- e.g. "B+3.5", "W+Resign"
		board_size INTEGER,
		komi REAL,
		checksum TEXT,                  -- xxhash of the move stream, for content dedupe
		source TEXT,
		crawled_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		is_processed BOOLEAN DEFAULT 0  -- Flag for training converter
	);

	-- Table to store every move of every game
	CREATE TABLE IF NOT EXISTS moves (
		game_id TEXT,
		turn INTEGER,
		vertex TEXT,                    -- GTP vertex ("C3", "pass", "resign")
		PRIMARY KEY (game_id, turn),
		FOREIGN KEY(game_id) REFERENCES games(id)
	);

	-- Indexes for faster lookups
	CREATE INDEX IF NOT EXISTS idx_games_is_processed ON games(is_processed);
	CREATE INDEX IF NOT EXISTS idx_games_checksum ON games(checksum);
	CREATE INDEX IF NOT EXISTS idx_moves_game_id ON moves(game_id);
	`

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// GameExists checks if a game has already been downloaded
func (db *DB) GameExists(gameID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var exists int
	err := db.conn.QueryRow("SELECT 1 FROM games WHERE id = ?", gameID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ChecksumExists reports whether a game with the same move-stream
// checksum is already stored. Servers sometimes list the same game under
// several ids.
func (db *DB) ChecksumExists(checksum string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var exists int
	err := db.conn.QueryRow("SELECT 1 FROM games WHERE checksum = ?", checksum).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertGame inserts a game and all its moves in a single transaction
func (db *DB) InsertGame(game Game, moves []MoveRow) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR IGNORE INTO games (id, result, board_size, komi, checksum, source) VALUES (?, ?, ?, ?, ?, ?)",
		game.ID, game.Result, game.BoardSize, game.Komi, game.Checksum, game.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to insert game: %w", err)
	}

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO moves (game_id, turn, vertex) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare move statement: %w", err)
	}
	defer stmt.Close()

	for _, move := range moves {
		_, err = stmt.Exec(move.GameID, move.Turn, move.Vertex)
		if err != nil {
			return fmt.Errorf("failed to insert move %d: %w", move.Turn, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetUnprocessedGames returns games that haven't been converted to training data
func (db *DB) GetUnprocessedGames(limit int) ([]Game, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		"SELECT id, result, board_size, komi, checksum, source, crawled_at, is_processed FROM games WHERE is_processed = 0 LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Result, &g.BoardSize, &g.Komi, &g.Checksum, &g.Source, &g.CrawledAt, &g.IsProcessed); err != nil {
			return nil, err
		}
		games = append(games, g)
	}

	return games, rows.Err()
}

// GetGameMoves returns all moves for a specific game in turn order
func (db *DB) GetGameMoves(gameID string) ([]MoveRow, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		"SELECT game_id, turn, vertex FROM moves WHERE game_id = ? ORDER BY turn",
		gameID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var moves []MoveRow
	for rows.Next() {
		var m MoveRow
		if err := rows.Scan(&m.GameID, &m.Turn, &m.Vertex); err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}

	return moves, rows.Err()
}

// MarkGameProcessed marks a game as processed for training
func (db *DB) MarkGameProcessed(gameID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec("UPDATE games SET is_processed = 1 WHERE id = ?", gameID)
	return err
}

// Stats returns statistics about the database
func (db *DB) Stats() (totalGames, processedGames, totalMoves int64, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	err = db.conn.QueryRow("SELECT COUNT(*) FROM games").Scan(&totalGames)
	if err != nil {
		return
	}

	err = db.conn.QueryRow("SELECT COUNT(*) FROM games WHERE is_processed = 1").Scan(&processedGames)
	if err != nil {
		return
	}

	err = db.conn.QueryRow("SELECT COUNT(*) FROM moves").Scan(&totalMoves)
	return
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetAllGameIDs returns all game IDs in the database
func (db *DB) GetAllGameIDs() (map[string]bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query("SELECT id FROM games")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			log.Printf("Error scanning game ID: %v", err)
			continue
		}
		ids[id] = true
	}

	return ids, rows.Err()
}
