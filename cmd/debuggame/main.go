package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sente-go/sente/executor/convert"
	"github.com/sente-go/sente/executor/inference"
	"github.com/sente-go/sente/executor/mcts"
	"github.com/sente-go/sente/executor/selfplay"
	"github.com/sente-go/sente/store"
)

// debuggame plays a single verbose self-play game and writes it to a
// parquet file for inspection in the viewer.
func main() {
	modelPath := flag.String("model", filepath.Join("models", "sente_net.onnx"), "Path to ONNX model")
	outDir := flag.String("out-dir", filepath.Join("debug_games"), "Output directory for debug games")
	boardSize := flag.Int("board-size", 9, "Board size (n x n, max 19)")
	rounds := flag.Int("rounds", 256, "Number of search rounds per move")
	cpuct := flag.Float64("cpuct", 1.0, "Exploration constant")
	cuda := flag.Bool("cuda", false, "Enable CUDA for inference")
	flag.Parse()

	log.Printf("Loading model: %s", *modelPath)
	encoder := convert.NewEncoder(*boardSize, *boardSize)
	pool, err := inference.NewOnnxClientPoolWithConfig(*modelPath, encoder, 1, inference.OnnxClientConfig{
		BatchSize:    1,
		BatchTimeout: inference.DefaultBatchTimeout,
		UseCUDA:      *cuda,
	})
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	defer pool.Close()

	cfg := mcts.Config{Cpuct: float32(*cpuct), Rounds: *rounds}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	log.Printf("Playing debug game: %dx%d, %d rounds, cpuct=%.2f", *boardSize, *boardSize, *rounds, *cpuct)

	out := selfplay.PlayGame(ctx, 0, *boardSize, cfg, pool, true, nil)
	if !out.Completed {
		log.Fatal("debug game did not complete")
	}

	log.Printf("Game complete: %s in %d moves", out.Result.Score, out.Result.Moves)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	// A single game goes straight to named files; the atomic tmp/rename
	// dance is only needed for the long-running batch writers.
	base := fmt.Sprintf("debug_%d", time.Now().UnixNano())
	archivePath := filepath.Join(*outDir, base+"_archive.parquet")
	if err := store.WriteArchiveParquet(archivePath, out.ArchiveRows); err != nil {
		log.Fatalf("Failed to write debug game archive: %v", err)
	}
	trainPath := filepath.Join(*outDir, base+"_train.parquet")
	if err := store.WriteGameParquet(trainPath, out.TrainingRows); err != nil {
		log.Fatalf("Failed to write debug game training rows: %v", err)
	}

	log.Printf("Debug game written to: %s and %s", archivePath, trainPath)
}
