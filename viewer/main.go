package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sente-go/sente/executor/convert"
	"github.com/sente-go/sente/executor/inference"
	"github.com/sente-go/sente/executor/mcts"
	"github.com/sente-go/sente/game"
	"github.com/sente-go/sente/store"

	_ "github.com/duckdb/duckdb-go/v2"
)

type GameSummary struct {
	GameID string `json:"game_id"`
	// StartedNs is parsed from game_id for selfplay games with format: selfplay_<unix_nano>_<worker>.
	// Nil for game IDs that do not match that format.
	StartedNs  *int64 `json:"started_ns"`
	MinTurn    int32  `json:"min_turn"`
	MaxTurn    int32  `json:"max_turn"`
	TurnCount  int32  `json:"turn_count"`
	Rows       int32  `json:"rows"`
	Cols       int32  `json:"cols"`
	Source     string `json:"source"`
	SourceFile string `json:"file"`
	Winner     string `json:"winner"`
}

type GamesResponse struct {
	Total int64         `json:"total"`
	Games []GameSummary `json:"games"`
}

type StatsPoint struct {
	TNs int64 `json:"t_ns"`

	SelfplayGames      int64 `json:"selfplay_games"`
	SelfplayTotalTurns int64 `json:"selfplay_total_turns"`
	SelfplayBlackWins  int64 `json:"selfplay_black_wins"`
	SelfplayWhiteWins  int64 `json:"selfplay_white_wins"`

	ScrapedGames      int64 `json:"scraped_games"`
	ScrapedTotalTurns int64 `json:"scraped_total_turns"`
	ScrapedBlackWins  int64 `json:"scraped_black_wins"`
	ScrapedWhiteWins  int64 `json:"scraped_white_wins"`
}

type StatsResponse struct {
	FromNs   int64        `json:"from_ns"`
	ToNs     int64        `json:"to_ns"`
	BucketNs int64        `json:"bucket_ns"`
	Points   []StatsPoint `json:"points"`
}

type Point struct {
	Row int32 `json:"row"`
	Col int32 `json:"col"`
}

type Turn struct {
	GameID      string            `json:"game_id"`
	Turn        int32             `json:"turn"`
	Rows        int32             `json:"rows"`
	Cols        int32             `json:"cols"`
	Color       int32             `json:"color"`
	Black       []Point           `json:"black"`
	White       []Point           `json:"white"`
	Move        int32             `json:"move"`
	MoveVertex  string            `json:"move_vertex,omitempty"`
	PolicyProbs []float32         `json:"policy_probs,omitempty"`
	Value       float32           `json:"value"`
	Source      string            `json:"source"`
	ModelPath   string            `json:"model_path,omitempty"`
	SearchRoot  []store.RootChild `json:"search_root,omitempty"`
}

type MCTSAction struct {
	Move   int     `json:"move"`
	Vertex string  `json:"vertex"`
	N      int32   `json:"n"`
	Q      float32 `json:"q"`
	P      float32 `json:"p"`
}

type MCTSResponse struct {
	GameID    string       `json:"game_id"`
	Turn      int32        `json:"turn"`
	Rounds    int          `json:"rounds"`
	Cpuct     float32      `json:"cpuct"`
	BestMove  string       `json:"best_move"`
	RootValue float32      `json:"root_value"`
	State     Turn         `json:"state"`
	Actions   []MCTSAction `json:"actions"`
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	listen := fs.String("listen", "127.0.0.1:8080", "HTTP listen address")
	dataDir := fs.String("data-dir", "", "Directory containing archive parquet shards (archive_turn_v1) [deprecated: prefer -data-dirs]")
	dataDirs := fs.String("data-dirs", strings.Join(defaultDataDirs(), ","), "Comma-separated list of directories containing archive parquet shards (archive_turn_v1)")
	staticDir := fs.String("static-dir", "", "Optional directory to serve as SPA static (e.g. viewer/web/dist)")
	modelPath := fs.String("model-path", filepath.Join("models", "sente_net.onnx"), "ONNX model path for the search explorer")
	mctsSessions := fs.Int("mcts-sessions", 1, "Number of ONNX sessions for the search explorer")
	mctsCUDA := fs.Bool("mcts-cuda", false, "Enable CUDA execution provider for the search explorer (requires CUDA runtime libs)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("flag parse: %v", err)
	}

	roots := parseDataRoots(*dataDirs)
	if strings.TrimSpace(*dataDir) != "" {
		// Back-compat: if user explicitly sets -data-dir, use only that.
		roots = []string{strings.TrimSpace(*dataDir)}
	}

	log.Printf("Viewer data roots: %s", strings.Join(roots, ","))

	pools := newPoolCache(*modelPath, *mctsSessions, *mctsCUDA)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/games", func(w http.ResponseWriter, r *http.Request) {
		withCORS(w, r)
		if r.Method == http.MethodOptions {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		db, err := openDuckDBForRoots(roots)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer db.Close()

		limit := parseIntQuery(r, "limit", 200)
		offset := parseIntQuery(r, "offset", 0)
		sortKey := strings.TrimSpace(r.URL.Query().Get("sort"))
		sortDir := strings.TrimSpace(r.URL.Query().Get("dir"))
		total, err := queryGamesTotal(r.Context(), db)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		games, err := queryGames(r.Context(), db, roots, limit, offset, sortKey, sortDir)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, GamesResponse{Total: total, Games: games})
	})

	mux.HandleFunc("/api/games/", func(w http.ResponseWriter, r *http.Request) {
		withCORS(w, r)
		if r.Method == http.MethodOptions {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		db, err := openDuckDBForRoots(roots)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer db.Close()

		// /api/games/{id}/turns
		rest := strings.TrimPrefix(r.URL.Path, "/api/games/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "turns" {
			http.NotFound(w, r)
			return
		}
		gameID, err := url.PathUnescape(parts[0])
		if err != nil {
			http.Error(w, "bad game id", http.StatusBadRequest)
			return
		}
		turns, err := queryTurns(r.Context(), db, gameID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(turns) == 0 {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, turns)
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		withCORS(w, r)
		if r.Method == http.MethodOptions {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		fromNs := parseInt64Query(r, "from_ns", 0)
		toNs := parseInt64Query(r, "to_ns", 0)
		bucketNs := parseInt64Query(r, "bucket_ns", 5*60*1_000_000_000)
		if bucketNs <= 0 {
			bucketNs = 5 * 60 * 1_000_000_000
		}
		if fromNs <= 0 || toNs <= 0 || toNs <= fromNs {
			// Default: last 24h.
			nowNs := time.Now().UnixNano()
			toNs = nowNs
			fromNs = nowNs - int64(24*time.Hour)
		}

		db, err := openDuckDBForRoots(roots)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer db.Close()

		points, err := queryStats(r.Context(), db, fromNs, toNs, bucketNs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, StatsResponse{FromNs: fromNs, ToNs: toNs, BucketNs: bucketNs, Points: points})
	})

	mux.HandleFunc("/api/mcts", func(w http.ResponseWriter, r *http.Request) {
		withCORS(w, r)
		if r.Method == http.MethodOptions {
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		gameID := strings.TrimSpace(r.URL.Query().Get("game_id"))
		turn := parseIntQuery(r, "turn", -1)
		rounds := parseIntQuery(r, "rounds", 800)
		cpuctStr := strings.TrimSpace(r.URL.Query().Get("cpuct"))
		cpuct := float32(1.5)
		if cpuctStr != "" {
			if f, err := strconv.ParseFloat(cpuctStr, 32); err == nil {
				cpuct = float32(f)
			}
		}

		if gameID == "" || turn < 0 {
			http.Error(w, "missing game_id or turn", http.StatusBadRequest)
			return
		}
		if rounds <= 0 {
			rounds = 800
		}

		db, err := openDuckDBForRoots(roots)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()

		turns, err := queryTurns(ctx, db, gameID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(turns) == 0 {
			http.NotFound(w, r)
			return
		}

		state, t, err := replayToTurn(turns, int32(turn))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		encoder, pool, err := pools.get(int(t.Rows))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		m := &mcts.MCTS{
			Config:  mcts.Config{Cpuct: cpuct, Rounds: rounds},
			Client:  pool,
			Encoder: encoder,
		}
		decision, err := m.SelectMove(ctx, state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		actions := make([]MCTSAction, 0, len(decision.Visits))
		for i, n := range decision.Visits {
			if n == 0 {
				continue
			}
			mv, err := encoder.DecodeMoveIndex(i)
			if err != nil {
				continue
			}
			actions = append(actions, MCTSAction{
				Move:   i,
				Vertex: mv.String(),
				N:      n,
				Q:      decision.Qs[i],
				P:      decision.Priors[i],
			})
		}
		sort.Slice(actions, func(a, b int) bool { return actions[a].N > actions[b].N })

		writeJSON(w, MCTSResponse{
			GameID:    gameID,
			Turn:      t.Turn,
			Rounds:    rounds,
			Cpuct:     cpuct,
			BestMove:  decision.Move.String(),
			RootValue: decision.RootValue,
			State:     t,
			Actions:   actions,
		})
	})

	if strings.TrimSpace(*staticDir) != "" {
		spa := spaHandler{staticPath: *staticDir, indexPath: filepath.Join(*staticDir, "index.html")}
		mux.Handle("/", spa)
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("Viewer API listening on http://%s", *listen)
	if strings.TrimSpace(*staticDir) != "" {
		log.Printf("Serving SPA from %s", *staticDir)
	}
	log.Fatal(srv.ListenAndServe())
}

// replayToTurn rebuilds the position at the given turn by replaying the
// archived moves from the start of the game. Archive rows store stone
// coordinates, not history, and the feature planes need the position
// chain for the repetition plane, so a bare snapshot is not enough.
func replayToTurn(turns []Turn, turn int32) (*game.GameState, Turn, error) {
	var target *Turn
	for i := range turns {
		if turns[i].Turn == turn {
			target = &turns[i]
			break
		}
	}
	if target == nil {
		return nil, Turn{}, fmt.Errorf("turn %d not found", turn)
	}
	if target.Rows != target.Cols || target.Rows < 1 || target.Rows > game.MaxBoardSize {
		return nil, Turn{}, fmt.Errorf("invalid board size %dx%d", target.Rows, target.Cols)
	}

	size := int(target.Rows)
	encoder := convert.NewEncoder(size, size)
	state := game.NewGame(size)
	for i := range turns {
		t := &turns[i]
		if t.Turn >= turn {
			break
		}
		if t.Move < 0 {
			return nil, Turn{}, fmt.Errorf("turn %d has no recorded move", t.Turn)
		}
		mv, err := encoder.DecodeMoveIndex(int(t.Move))
		if err != nil {
			return nil, Turn{}, fmt.Errorf("turn %d: %w", t.Turn, err)
		}
		if int32(state.NextPlayer()) != t.Color {
			return nil, Turn{}, fmt.Errorf("turn %d: player to move does not match archive", t.Turn)
		}
		state, err = state.ApplyMove(mv)
		if err != nil {
			return nil, Turn{}, fmt.Errorf("turn %d: replay %s: %w", t.Turn, mv, err)
		}
	}
	if int32(state.NextPlayer()) != target.Color {
		return nil, Turn{}, fmt.Errorf("turn %d: player to move does not match archive", turn)
	}
	return state, *target, nil
}

// poolCache lazily builds one inference pool per board size. Sessions are
// expensive, so they are kept for the life of the process.
type poolCache struct {
	modelPath string
	sessions  int
	cuda      bool

	mu    sync.Mutex
	pools map[int]*inference.OnnxPool
	encs  map[int]*convert.Encoder
}

func newPoolCache(modelPath string, sessions int, cuda bool) *poolCache {
	return &poolCache{
		modelPath: modelPath,
		sessions:  sessions,
		cuda:      cuda,
		pools:     make(map[int]*inference.OnnxPool),
		encs:      make(map[int]*convert.Encoder),
	}
}

func (c *poolCache) get(size int) (*convert.Encoder, *inference.OnnxPool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pools[size]; ok {
		return c.encs[size], p, nil
	}
	encoder := convert.NewEncoder(size, size)
	cfg := inference.OnnxClientConfig{UseCUDA: c.cuda}
	p, err := inference.NewOnnxClientPoolWithConfig(c.modelPath, encoder, c.sessions, cfg)
	if err != nil {
		return nil, nil, err
	}
	c.encs[size] = encoder
	c.pools[size] = p
	return encoder, p, nil
}

func defaultDataDirs() []string {
	preferred := []string{
		filepath.Join("data", "archive"),
		filepath.Join("data", "scraped"),
	}
	out := make([]string, 0, len(preferred))
	for _, p := range preferred {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, filepath.Join("data", "archive"))
	}
	return out
}

func parseDataRoots(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Serve exact static asset if exists; otherwise serve index.html for client-side routing.
	path := filepath.Clean(r.URL.Path)
	if path == "/" {
		http.ServeFile(w, r, h.indexPath)
		return
	}
	candidate := filepath.Join(h.staticPath, strings.TrimPrefix(path, "/"))
	if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
		http.ServeFile(w, r, candidate)
		return
	}
	// Fallback to SPA.
	http.ServeFile(w, r, h.indexPath)
}

func withCORS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < 0 {
		return def
	}
	return n
}

func parseInt64Query(r *http.Request, key string, def int64) int64 {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func findParquetFiles(root string) ([]string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}
	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if name == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(name), ".parquet") {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		if os.IsNotExist(walkErr) {
			return nil, nil
		}
		return nil, walkErr
	}
	return files, nil
}

func findParquetFilesMulti(roots []string) ([]string, error) {
	seen := make(map[string]bool, 1024)
	out := make([]string, 0, 1024)
	for _, r := range roots {
		files, err := findParquetFiles(r)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

func openDuckDBForRoots(roots []string) (*sql.DB, error) {
	parquetFiles, err := findParquetFilesMulti(roots)
	if err != nil {
		return nil, err
	}
	return openDuckDB(parquetFiles)
}

func openDuckDB(parquetFiles []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	// Basic pragmas; ignore errors for compatibility across versions.
	_, _ = db.Exec("PRAGMA threads=4")
	// Disable DuckDB's object cache so API responses reflect on-disk changes.
	_, _ = db.Exec("PRAGMA enable_object_cache=false")

	// Create a view over all parquet shards.
	if len(parquetFiles) == 0 {
		_, err := db.Exec(`CREATE OR REPLACE VIEW turns AS
			SELECT * FROM (
				SELECT
					NULL::VARCHAR AS game_id,
					NULL::INTEGER AS turn,
					NULL::INTEGER AS "rows",
					NULL::INTEGER AS cols,
					NULL::INTEGER AS color,
					NULL::INTEGER[] AS black_row,
					NULL::INTEGER[] AS black_col,
					NULL::INTEGER[] AS white_row,
					NULL::INTEGER[] AS white_col,
					NULL::INTEGER AS move,
					NULL::REAL[] AS policy_probs,
					NULL::REAL AS value,
					NULL::VARCHAR AS source,
					NULL::VARCHAR AS model_path,
					NULL::BLOB AS search_root_json,
					NULL::VARCHAR AS filename
			) WHERE 1=0`)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	arr := make([]string, 0, len(parquetFiles))
	for _, p := range parquetFiles {
		arr = append(arr, "'"+escapeSQLString(p)+"'")
	}
	// filename=true adds a 'filename' column so we can show provenance in the UI.
	sqlText := "CREATE OR REPLACE VIEW turns AS SELECT * FROM read_parquet([" + strings.Join(arr, ",") + "], filename=true)"
	if _, err := db.Exec(sqlText); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func queryGamesTotal(ctx context.Context, db *sql.DB) (int64, error) {
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT game_id) FROM turns`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func normalizeSort(sortKey string, sortDir string) (string, string) {
	sk := strings.ToLower(strings.TrimSpace(sortKey))
	sd := strings.ToLower(strings.TrimSpace(sortDir))
	if sd != "asc" && sd != "desc" {
		sd = "desc"
	}
	// Map user-facing keys to SQL expressions / aliases. Must be safe (no user input concatenated).
	switch sk {
	case "time", "started", "started_ns":
		sk = "started_ns"
	case "id", "game", "game_id":
		sk = "game_id"
	case "turns", "turn_count":
		sk = "turn_count"
	case "size", "rows":
		sk = "board_rows"
	case "source":
		sk = "source"
	case "file", "filename":
		sk = "file"
	default:
		sk = "started_ns"
		sd = "desc"
	}
	return sk, sd
}

func makeRelativeToRoots(filename string, roots []string) string {
	fn := strings.TrimSpace(filename)
	if fn == "" {
		return ""
	}
	best := fn
	bestLen := len(best)
	for _, r := range roots {
		root := strings.TrimSpace(r)
		if root == "" {
			continue
		}
		rel, err := filepath.Rel(root, fn)
		if err != nil {
			continue
		}
		// Ignore paths that escape the root.
		if strings.HasPrefix(rel, "..") {
			continue
		}
		cand := filepath.ToSlash(filepath.Join(root, rel))
		if len(cand) < bestLen {
			best = cand
			bestLen = len(cand)
		}
	}
	return best
}

func queryGames(ctx context.Context, db *sql.DB, roots []string, limit int, offset int, sortKey string, sortDir string) ([]GameSummary, error) {
	sk, sd := normalizeSort(sortKey, sortDir)
	orderExpr := "started_ns"
	switch sk {
	case "started_ns":
		orderExpr = "started_ns"
	case "game_id":
		orderExpr = "game_id"
	case "turn_count":
		orderExpr = "turn_count"
	case "board_rows":
		orderExpr = "board_rows"
	case "source":
		orderExpr = "source"
	case "file":
		orderExpr = "file"
	}

	orderClause := " ORDER BY " + orderExpr + " " + strings.ToUpper(sd)
	if orderExpr == "started_ns" {
		orderClause += " NULLS LAST"
	}
	// Stable tie-breakers.
	if orderExpr != "started_ns" {
		orderClause += ", started_ns DESC NULLS LAST"
	}
	orderClause += ", game_id DESC"

	query :=
		`SELECT
			game_id,
			CASE
				WHEN starts_with(game_id, 'selfplay_') THEN try_cast(regexp_extract(game_id, '^selfplay_([0-9]+)_', 1) AS BIGINT)
				ELSE NULL
			END AS started_ns,
			MIN(turn)::INTEGER AS min_turn,
			MAX(turn)::INTEGER AS max_turn,
			(MAX(turn) - MIN(turn) + 1)::INTEGER AS turn_count,
			MIN("rows")::INTEGER AS board_rows,
			MIN(cols)::INTEGER AS board_cols,
			MIN(source)::VARCHAR AS source,
			MIN(filename)::VARCHAR AS file
		FROM turns
		GROUP BY game_id` +
			orderClause +
			` LIMIT ? OFFSET ?`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]GameSummary, 0, limit)
	for rows.Next() {
		var g GameSummary
		var file string
		if err := rows.Scan(&g.GameID, &g.StartedNs, &g.MinTurn, &g.MaxTurn, &g.TurnCount, &g.Rows, &g.Cols, &g.Source, &file); err != nil {
			return nil, err
		}
		g.SourceFile = makeRelativeToRoots(file, roots)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	gameIDs := make([]string, 0, len(out))
	for _, g := range out {
		gameIDs = append(gameIDs, g.GameID)
	}
	winners, err := queryGameWinners(ctx, db, gameIDs)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Winner = winners[out[i].GameID]
	}
	return out, nil
}

// queryGameWinners derives the winner from the last archived turn of each
// game: value is from the mover's perspective, so a positive value on the
// last turn means the player to move there won.
func queryGameWinners(ctx context.Context, db *sql.DB, gameIDs []string) (map[string]string, error) {
	if len(gameIDs) == 0 {
		return map[string]string{}, nil
	}
	args := make([]any, 0, len(gameIDs))
	placeholders := make([]string, 0, len(gameIDs))
	for _, id := range gameIDs {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}

	query := `WITH last_turn AS (
		SELECT game_id, color, value
		FROM (
			SELECT
				game_id,
				color,
				value,
				row_number() OVER (PARTITION BY game_id ORDER BY turn DESC) AS rn
			FROM turns
			WHERE game_id IN (` + strings.Join(placeholders, ",") + `)
		)
		WHERE rn = 1
	)
	SELECT game_id, color, value FROM last_turn`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string, len(gameIDs))
	for rows.Next() {
		var gameID string
		var color int32
		var value float32
		if err := rows.Scan(&gameID, &color, &value); err != nil {
			return nil, err
		}
		out[gameID] = winnerString(color, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func winnerString(moverColor int32, moverValue float32) string {
	winner := game.Color(moverColor)
	switch {
	case moverValue > 0:
	case moverValue < 0:
		if winner == game.Black {
			winner = game.White
		} else {
			winner = game.Black
		}
	default:
		return ""
	}
	if winner == game.Black {
		return "black"
	}
	return "white"
}

func queryStats(ctx context.Context, db *sql.DB, fromNs int64, toNs int64, bucketNs int64) ([]StatsPoint, error) {
	query := `WITH games AS (
		SELECT
			game_id,
			CASE WHEN starts_with(game_id, 'selfplay_') THEN 'selfplay' ELSE 'scraped' END AS kind,
			COALESCE(
				try_cast(regexp_extract(game_id, '^selfplay_([0-9]+)_', 1) AS BIGINT),
				try_cast(regexp_extract(MIN(filename), 'batch_([0-9]+)\\.parquet', 1) AS BIGINT),
				try_cast(regexp_extract(MIN(filename), 'batch_([0-9]+)', 1) AS BIGINT)
			) AS ts_ns,
			MIN(turn)::BIGINT AS min_turn,
			MAX(turn)::BIGINT AS max_turn,
			(MAX(turn) - MIN(turn) + 1)::BIGINT AS turn_count
		FROM turns
		GROUP BY game_id
	),
	filtered AS (
		SELECT *
		FROM games
		WHERE ts_ns IS NOT NULL
			AND ts_ns >= ?
			AND ts_ns <= ?
	),
	outcomes AS (
		SELECT
			t.game_id,
			CASE WHEN (t.value > 0 AND t.color = 1) OR (t.value < 0 AND t.color = 2) THEN 1 ELSE 0 END AS black_win,
			CASE WHEN (t.value > 0 AND t.color = 2) OR (t.value < 0 AND t.color = 1) THEN 1 ELSE 0 END AS white_win
		FROM turns t
		JOIN filtered g ON g.game_id = t.game_id AND t.turn = g.max_turn
	),
	joined AS (
		SELECT
			f.game_id,
			f.kind,
			f.ts_ns,
			f.turn_count,
			COALESCE(o.black_win, 0)::BIGINT AS black_win,
			COALESCE(o.white_win, 0)::BIGINT AS white_win,
			(? + floor((f.ts_ns - ?)::DOUBLE / ?::DOUBLE) * ?)::BIGINT AS bucket_start_ns
		FROM filtered f
		LEFT JOIN outcomes o ON o.game_id = f.game_id
	)
	SELECT
		bucket_start_ns,
		SUM(CASE WHEN kind = 'selfplay' THEN 1 ELSE 0 END)::BIGINT AS selfplay_games,
		SUM(CASE WHEN kind = 'selfplay' THEN turn_count ELSE 0 END)::BIGINT AS selfplay_total_turns,
		SUM(CASE WHEN kind = 'selfplay' THEN black_win ELSE 0 END)::BIGINT AS selfplay_black_wins,
		SUM(CASE WHEN kind = 'selfplay' THEN white_win ELSE 0 END)::BIGINT AS selfplay_white_wins,
		SUM(CASE WHEN kind = 'scraped' THEN 1 ELSE 0 END)::BIGINT AS scraped_games,
		SUM(CASE WHEN kind = 'scraped' THEN turn_count ELSE 0 END)::BIGINT AS scraped_total_turns,
		SUM(CASE WHEN kind = 'scraped' THEN black_win ELSE 0 END)::BIGINT AS scraped_black_wins,
		SUM(CASE WHEN kind = 'scraped' THEN white_win ELSE 0 END)::BIGINT AS scraped_white_wins
	FROM joined
	GROUP BY bucket_start_ns
	ORDER BY bucket_start_ns ASC`

	rows, err := db.QueryContext(ctx, query, fromNs, toNs, fromNs, fromNs, bucketNs, bucketNs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]StatsPoint, 0, 1024)
	for rows.Next() {
		var p StatsPoint
		if err := rows.Scan(
			&p.TNs,
			&p.SelfplayGames,
			&p.SelfplayTotalTurns,
			&p.SelfplayBlackWins,
			&p.SelfplayWhiteWins,
			&p.ScrapedGames,
			&p.ScrapedTotalTurns,
			&p.ScrapedBlackWins,
			&p.ScrapedWhiteWins,
		); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func queryTurns(ctx context.Context, db *sql.DB, gameID string) ([]Turn, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT game_id, turn::INTEGER, "rows"::INTEGER, cols::INTEGER, color::INTEGER,
			black_row, black_col, white_row, white_col,
			move::INTEGER, policy_probs, value, source, model_path, search_root_json
		 FROM turns
		 WHERE game_id = ?
		 ORDER BY turn ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := make([]Turn, 0, 256)
	for rows.Next() {
		var t Turn
		var blackRowAny, blackColAny, whiteRowAny, whiteColAny any
		var policyAny any
		var modelPath sql.NullString
		var searchRootAny any
		if err := rows.Scan(&t.GameID, &t.Turn, &t.Rows, &t.Cols, &t.Color,
			&blackRowAny, &blackColAny, &whiteRowAny, &whiteColAny,
			&t.Move, &policyAny, &t.Value, &t.Source, &modelPath, &searchRootAny); err != nil {
			return nil, err
		}
		t.Black = zipPoints(asInt32Slice(blackRowAny), asInt32Slice(blackColAny))
		t.White = zipPoints(asInt32Slice(whiteRowAny), asInt32Slice(whiteColAny))
		t.PolicyProbs = asFloat32Slice(policyAny)
		t.ModelPath = modelPath.String
		t.SearchRoot = decodeSearchRoot(searchRootAny)
		t.MoveVertex = moveVertex(t.Move, int(t.Rows), int(t.Cols))
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return turns, nil
}

func moveVertex(move int32, boardRows, boardCols int) string {
	if move < 0 || boardRows < 1 || boardCols < 1 || boardRows > game.MaxBoardSize {
		return ""
	}
	encoder := convert.NewEncoder(boardRows, boardCols)
	mv, err := encoder.DecodeMoveIndex(int(move))
	if err != nil {
		return ""
	}
	return mv.String()
}

func decodeSearchRoot(v any) []store.RootChild {
	raw := asBytes(v)
	if len(raw) == 0 {
		return nil
	}
	var children []store.RootChild
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil
	}
	return children
}

func zipPoints(rs, cs []int32) []Point {
	n := len(rs)
	if len(cs) < n {
		n = len(cs)
	}
	out := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Point{Row: rs[i], Col: cs[i]})
	}
	return out
}

func asInt32Slice(v any) []int32 {
	if v == nil {
		return nil
	}
	switch vv := v.(type) {
	case []int32:
		return vv
	case []int64:
		out := make([]int32, 0, len(vv))
		for _, x := range vv {
			out = append(out, int32(x))
		}
		return out
	case []any:
		out := make([]int32, 0, len(vv))
		for _, x := range vv {
			out = append(out, int32(asInt64(x)))
		}
		return out
	default:
		return nil
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asFloat32(v any) float32 {
	switch t := v.(type) {
	case float32:
		return t
	case float64:
		return float32(t)
	case int64:
		return float32(t)
	case int32:
		return float32(t)
	default:
		return 0
	}
}

func asFloat32Slice(v any) []float32 {
	if v == nil {
		return nil
	}
	switch vv := v.(type) {
	case []float32:
		return vv
	case []float64:
		out := make([]float32, 0, len(vv))
		for _, x := range vv {
			out = append(out, float32(x))
		}
		return out
	case []any:
		out := make([]float32, 0, len(vv))
		for _, x := range vv {
			out = append(out, asFloat32(x))
		}
		return out
	default:
		return nil
	}
}

func asBytes(v any) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return nil
	}
}
