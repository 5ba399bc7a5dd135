package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/sente-go/sente/executor/convert"
	"github.com/sente-go/sente/executor/inference"
	"github.com/sente-go/sente/executor/mcts"
	"github.com/sente-go/sente/gtp"
)

// gtp speaks the Go Text Protocol on stdin/stdout so the engine can be
// attached to gogui or another GTP controller.
func main() {
	modelPath := flag.String("model", filepath.Join("models", "sente_net.onnx"), "Path to ONNX model")
	boardSize := flag.Int("board-size", 9, "Initial board size (controllers can change it with boardsize)")
	rounds := flag.Int("rounds", 512, "Search rounds per genmove")
	cpuct := flag.Float64("cpuct", 1.0, "Exploration constant")
	cuda := flag.Bool("cuda", false, "Enable CUDA for inference")
	flag.Parse()

	// The protocol owns stdout; everything else goes to stderr.
	log.SetOutput(os.Stderr)

	onnxCfg := inference.OnnxClientConfig{
		BatchSize:    1,
		BatchTimeout: inference.DefaultBatchTimeout,
		UseCUDA:      *cuda,
	}

	factory := func(size int) (gtp.MoveSelector, error) {
		encoder := convert.NewEncoder(size, size)
		client, err := inference.NewOnnxClientWithConfig(*modelPath, encoder, onnxCfg)
		if err != nil {
			return nil, err
		}
		return &mcts.MCTS{
			Config:  mcts.Config{Cpuct: float32(*cpuct), Rounds: *rounds},
			Client:  client,
			Encoder: encoder,
		}, nil
	}

	engine, err := gtp.NewEngine(factory, *boardSize)
	if err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	if err := engine.Run(context.Background(), os.Stdin, os.Stdout); err != nil {
		log.Fatalf("GTP session failed: %v", err)
	}
}
