// Package store persists self-play output as Parquet for training and
// archival.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// TrainingRow is a single supervised training sample.
//
// Planes holds the encoded feature planes for the position, flattened in
// [channel, row, col] order, from the perspective of the player to move.
//
// Policy is the distribution target over the action space (one slot per
// board point in row-major order, plus a final slot for pass), typically
// the normalized search visit counts.
// Value is the outcome target in [-1..1] from the perspective of the
// player to move.
type TrainingRow struct {
	GameID string    `parquet:"game_id,dict"`
	Turn   int32     `parquet:"turn"`
	Color  int32     `parquet:"color"`
	Rows   int32     `parquet:"rows"`
	Cols   int32     `parquet:"cols"`
	Planes []float32 `parquet:"planes"`
	Policy []float32 `parquet:"policy"`
	Value  float32   `parquet:"value"`
	Source string    `parquet:"source,dict"`
}

// ArchiveTurnRow is a single (game, turn) snapshot intended for long-term
// storage.
//
// It is model-agnostic and optimized for compression: the position is
// stored as stone coordinates rather than feature planes, so trainers can
// re-featurize archived games however they like.
//
// Move is the action index chosen on this turn (row-major point index, or
// rows*cols for pass). If unknown, Move is -1.
type ArchiveTurnRow struct {
	GameID string `parquet:"game_id,dict"`
	Turn   int32  `parquet:"turn"`
	Rows   int32  `parquet:"rows"`
	Cols   int32  `parquet:"cols"`

	// Color is the player to move on this turn. 1=black, 2=white.
	Color int32 `parquet:"color"`

	BlackRow []int32 `parquet:"black_row"`
	BlackCol []int32 `parquet:"black_col"`
	WhiteRow []int32 `parquet:"white_row"`
	WhiteCol []int32 `parquet:"white_col"`

	Move        int32     `parquet:"move"`
	PolicyProbs []float32 `parquet:"policy_probs"`
	Value       float32   `parquet:"value"`

	Source string `parquet:"source,dict"`

	// ModelPath is the resolved path to the ONNX model used to generate
	// this game. Symlinks are resolved to show the actual model file.
	ModelPath string `parquet:"model_path,dict,optional"`

	// SearchRootJSON stores a summary of the search root children.
	// Format: JSON array of {move: index, n: visitCount, q: qValue, p: prior}.
	// This allows replaying/debugging without the full tree.
	SearchRootJSON []byte `parquet:"search_root_json,optional,zstd"`
}

// RootChild is one entry of SearchRootJSON.
type RootChild struct {
	Move int     `json:"move"`
	N    int32   `json:"n"`
	Q    float32 `json:"q"`
	P    float32 `json:"p"`
}

func EncodeRootChildrenJSON(children []RootChild) ([]byte, error) {
	if len(children) == 0 {
		return nil, nil
	}
	return json.Marshal(children)
}

func WriteGameParquet(outPath string, rows []TrainingRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	// Write to a temp file and rename atomically.
	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	// Keep output simple and compact; avoid writing page bounds for raw feature blobs.
	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("planes"),
		parquet.KeyValueMetadata("schema", "training_row_v1"),
	); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

func WriteArchiveParquet(outPath string, rows []ArchiveTurnRow) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "archive_turn_v1"),
	); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

func WriteArchiveBatchParquetAtomic(outDir string, rows []ArchiveTurnRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "archive_turn_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}
