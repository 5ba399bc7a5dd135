package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sente-go/sente/executor/convert"
	"github.com/sente-go/sente/executor/inference"
	"github.com/sente-go/sente/executor/mcts"
	"github.com/sente-go/sente/executor/selfplay"
	"github.com/sente-go/sente/game"
	"github.com/sente-go/sente/store"
)

var totalMoves atomic.Int64
var totalInferences atomic.Int64
var totalGames atomic.Int64

type instrumentedClient struct {
	mcts.Evaluator
}

func (c *instrumentedClient) Evaluate(state *game.GameState) ([]float32, float32, error) {
	totalInferences.Add(1)
	return c.Evaluator.Evaluate(state)
}

type GameUpdate struct {
	WorkerID int
	Result   selfplay.GameResult
	Examples int
}

type gameWriteRequest struct {
	trainRows   []store.TrainingRow
	archiveRows []store.ArchiveTurnRow
}

type model struct {
	gamesPlayed   int
	totalExamples int
	moves         int64
	inferences    int64
	startTime     time.Time
	recentGames   []string
	updates       chan GameUpdate
}

func initialModel(updates chan GameUpdate) model {
	return model{
		startTime: time.Now(),
		updates:   updates,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates chan GameUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.moves = totalMoves.Load()
		m.inferences = totalInferences.Load()
		return m, tickCmd()
	case GameUpdate:
		m.gamesPlayed++
		m.totalExamples += msg.Examples
		logMsg := fmt.Sprintf("Worker %d: %s in %d moves, Ex %d", msg.WorkerID, msg.Result.Score, msg.Result.Moves, msg.Examples)
		m.recentGames = append([]string{logMsg}, m.recentGames...)
		if len(m.recentGames) > 10 {
			m.recentGames = m.recentGames[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	gamesPerSec := float64(m.gamesPlayed) / duration.Seconds()
	movesPerSec := float64(m.moves) / duration.Seconds()
	inferencesPerSec := float64(m.inferences) / duration.Seconds()
	if duration.Seconds() < 1 {
		gamesPerSec = 0
		movesPerSec = 0
		inferencesPerSec = 0
	}

	s := fmt.Sprintf("Games Played:   %d\n", m.gamesPlayed)
	s += fmt.Sprintf("Total Examples: %d\n", m.totalExamples)
	s += fmt.Sprintf("Total Moves:    %d\n", m.moves)
	s += fmt.Sprintf("Total Inferences: %d\n", m.inferences)
	s += fmt.Sprintf("Duration:       %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Games/Sec:      %.2f\n", gamesPerSec)
	s += fmt.Sprintf("Moves/Sec:      %.2f\n", movesPerSec)
	s += fmt.Sprintf("Inferences/Sec: %.2f\n\n", inferencesPerSec)

	s += "Recent Games:\n"
	for _, g := range m.recentGames {
		s += g + "\n"
	}

	s += "\nPress q to quit.\n"
	return s
}

func main() {
	modelPath := flag.String("model", "models/sente_net.onnx", "Path to the ONNX policy/value model")
	boardSize := flag.Int("board-size", 9, "Board size (n x n, max 19)")
	rounds := flag.Int("rounds", 256, "Search rounds per move")
	cpuct := flag.Float64("cpuct", 1.0, "Exploration constant for the search")
	outDir := flag.String("out-dir", "data/generated", "Output directory for generated training parquet batches")
	archiveDir := flag.String("archive-dir", "data/archive", "Output directory for archived game parquet batches")
	workers := flag.Int("workers", 128, "Number of self-play workers")
	gamesPerFlush := flag.Int("games-per-flush", 50, "Number of games to buffer per parquet flush")
	maxGames := flag.Int64("max-games", 0, "If > 0, stop after generating this many games (across all workers)")
	useTUI := flag.Bool("tui", false, "Show the live dashboard instead of log output")
	onnxSessions := flag.Int("onnx-sessions", 1, "Number of ONNX Runtime sessions to run in parallel (each has its own batching loop). Start with 1; increase if GPU is underutilized.")
	onnxBatchSize := flag.Int("onnx-batch-size", inference.DefaultBatchSize, "ONNX inference batch size (larger can improve GPU utilization)")
	onnxBatchTimeout := flag.Duration("onnx-batch-timeout", inference.DefaultBatchTimeout, "Max time to wait for filling an ONNX batch")
	useCUDA := flag.Bool("cuda", false, "Attempt the CUDA execution provider")
	flag.Parse()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	if _, err := os.Stat(*modelPath); os.IsNotExist(err) {
		log.Fatalf("Model file not found: %s. Run trainer/export_onnx.py first.", *modelPath)
	}

	encoder := convert.NewEncoder(*boardSize, *boardSize)

	var evaluator mcts.Evaluator
	var closer interface{ Close() error }
	var statsProvider any
	onnxCfg := inference.OnnxClientConfig{BatchSize: *onnxBatchSize, BatchTimeout: *onnxBatchTimeout, UseCUDA: *useCUDA}
	if *onnxSessions <= 1 {
		onnxClient, err := inference.NewOnnxClientWithConfig(*modelPath, encoder, onnxCfg)
		if err != nil {
			log.Fatalf("Failed to create ONNX client: %v", err)
		}
		evaluator = onnxClient
		closer = onnxClient
		statsProvider = onnxClient
	} else {
		pool, err := inference.NewOnnxClientPoolWithConfig(*modelPath, encoder, *onnxSessions, onnxCfg)
		if err != nil {
			log.Fatalf("Failed to create ONNX client pool: %v", err)
		}
		evaluator = pool
		closer = pool
		statsProvider = pool
	}
	defer func() {
		if closer != nil {
			_ = closer.Close()
		}
	}()

	var c mcts.Evaluator = &instrumentedClient{Evaluator: evaluator}

	log.Printf("Starting self-play: %dx%d board, %d workers, %d rounds/move", *boardSize, *boardSize, *workers, *rounds)
	// Each worker's search is sequential and can only have ~1 inference
	// request in flight, so total in-flight requests is roughly the
	// worker count. A larger batch size than that will almost never fill.
	if *onnxBatchSize > *workers {
		log.Printf("NOTE: onnx-batch-size=%d > max in-flight (~workers=%d). Effective batch will cap near %d; consider increasing -workers or lowering -onnx-batch-size.", *onnxBatchSize, *workers, *workers)
	}

	updates := make(chan GameUpdate, *workers)
	writeReqs := make(chan gameWriteRequest, (*workers)*4)

	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(*outDir, *archiveDir, *gamesPerFlush, writeReqs)
		close(writerDone)
	}()

	searchCfg := mcts.Config{Cpuct: float32(*cpuct), Rounds: *rounds}

	var workerWG sync.WaitGroup

	for i := 0; i < *workers; i++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			trace := workerID == 0 && !*useTUI
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				onStep := func() {
					totalMoves.Add(1)
				}
				out := selfplay.PlayGame(ctx, workerID, *boardSize, searchCfg, c, trace, onStep)
				if !out.Completed {
					continue
				}
				total := totalGames.Add(1)
				if *maxGames > 0 && total >= *maxGames {
					// Cancel the whole run after the target number of games.
					cancel()
				}

				writeReqs <- gameWriteRequest{trainRows: out.TrainingRows, archiveRows: out.ArchiveRows}

				// Avoid blocking shutdown if the UI loop stops consuming.
				select {
				case updates <- GameUpdate{WorkerID: workerID, Result: out.Result, Examples: len(out.TrainingRows)}:
				default:
				}
			}
		}(i)
	}

	if *useTUI {
		p := tea.NewProgram(initialModel(updates), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			log.Fatal(err)
		}
		cancel()
		workerWG.Wait()
		close(writeReqs)
		<-writerDone
		return
	}

	startTime := time.Now()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Shutdown requested; waiting for workers to finish current games...")
			workerWG.Wait()
			close(writeReqs)
			<-writerDone
			log.Printf("Shutdown complete: final parquet flush done (games=%d)", totalGames.Load())
			return
		case update := <-updates:
			log.Printf("Worker %d: %s in %d moves, Ex %d", update.WorkerID, update.Result.Score, update.Result.Moves, update.Examples)
		case <-ticker.C:
			duration := time.Since(startTime)
			moves := totalMoves.Load()
			inferences := totalInferences.Load()
			movesPerSec := float64(moves) / duration.Seconds()
			infPerSec := float64(inferences) / duration.Seconds()
			if sp, ok := statsProvider.(interface{ Stats() inference.RuntimeStats }); ok {
				st := sp.Stats()
				log.Printf("Stats: Moves/s: %.2f, Inf/s: %.2f | batch avg=%.1f last=%d q=%d run avg=%.2fms", movesPerSec, infPerSec, st.AvgBatchSize, st.LastBatchSize, st.QueueLen, st.AvgRunMs)
			} else {
				log.Printf("Stats: Moves/s: %.2f, Inf/s: %.2f", movesPerSec, infPerSec)
			}
		}
	}
}

func parquetWriterLoop(outDir, archiveDir string, gamesPerFlush int, in <-chan gameWriteRequest) {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}

	// Training rows are heavy (full feature planes per turn), so they
	// stream straight into the batch file; only the lighter archive
	// rows are held in memory between flushes.
	var trainWriter *store.BatchWriter
	pendingArchive := make([]store.ArchiveTurnRow, 0, 256*gamesPerFlush)
	pendingGames := 0

	flush := func(final bool) {
		if pendingGames == 0 {
			return
		}
		label := "flush"
		if final {
			label = "final flush"
		}

		if trainWriter != nil {
			outPath, rows, games, err := trainWriter.Finalize()
			if err != nil {
				log.Printf("Parquet %s failed (games=%d): %v", label, pendingGames, err)
			} else if outPath != "" {
				log.Printf("Parquet %s ok: %s (games=%d rows=%d)", label, outPath, games, rows)
			}
			trainWriter = nil
		}
		if len(pendingArchive) > 0 {
			outPath, err := store.WriteArchiveBatchParquetAtomic(archiveDir, pendingArchive)
			if err != nil {
				log.Printf("Archive %s failed (games=%d rows=%d): %v", label, pendingGames, len(pendingArchive), err)
			} else {
				log.Printf("Archive %s ok: %s (games=%d rows=%d)", label, outPath, pendingGames, len(pendingArchive))
			}
		}

		pendingArchive = pendingArchive[:0]
		pendingGames = 0
	}

	for req := range in {
		if len(req.trainRows) == 0 && len(req.archiveRows) == 0 {
			continue
		}
		if len(req.trainRows) > 0 {
			if trainWriter == nil {
				w, err := store.NewBatchWriter(outDir)
				if err != nil {
					log.Printf("Parquet batch create failed: %v", err)
				} else {
					trainWriter = w
				}
			}
			if trainWriter != nil {
				if err := trainWriter.WriteRows(req.trainRows); err != nil {
					log.Printf("Parquet write failed (rows=%d): %v", len(req.trainRows), err)
				} else {
					trainWriter.NoteGameWritten()
				}
			}
		}
		pendingArchive = append(pendingArchive, req.archiveRows...)
		pendingGames++

		if pendingGames >= gamesPerFlush {
			flush(false)
		}
	}

	flush(true)
}
