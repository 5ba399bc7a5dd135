// archive2train converts archived game shards into training shards by
// replaying each game and re-encoding the feature planes per turn.
//
// Archive rows store raw stone positions, so trainers can re-featurize
// old games whenever the encoder changes instead of regenerating them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"github.com/sente-go/sente/executor/convert"
	"github.com/sente-go/sente/game"
	"github.com/sente-go/sente/store"
)

func main() {
	inDir := flag.String("in-dir", "", "Directory containing archive parquet shards")
	outDir := flag.String("out-dir", "", "Output directory for training parquet shards")
	flag.Parse()

	if *inDir == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "-in-dir and -out-dir are required")
		os.Exit(2)
	}

	absIn, _ := filepath.Abs(*inDir)
	absOut, _ := filepath.Abs(*outDir)
	if absIn == absOut {
		fmt.Fprintln(os.Stderr, "out-dir must be different from in-dir")
		os.Exit(2)
	}

	if err := os.MkdirAll(absOut, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create out-dir: %v\n", err)
		os.Exit(2)
	}

	// Clean old outputs to avoid unbounded growth.
	_ = filepath.WalkDir(absOut, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			_ = os.Remove(path)
		}
		return nil
	})

	inputs := make([]string, 0, 1024)
	_ = filepath.WalkDir(absIn, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if name == "tmp" || name == "processed" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			inputs = append(inputs, path)
		}
		return nil
	})

	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "no parquet inputs found")
		os.Exit(1)
	}

	convertedFiles := 0
	for _, inPath := range inputs {
		base := filepath.Base(inPath)
		outPath := filepath.Join(absOut, strings.TrimSuffix(base, filepath.Ext(base))+".train.parquet")
		n, err := convertOne(inPath, outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "convert %s: %v\n", inPath, err)
			continue
		}
		if n > 0 {
			convertedFiles++
		}
	}

	if convertedFiles == 0 {
		fmt.Fprintln(os.Stderr, "no output written (no convertible rows)")
		os.Exit(1)
	}
}

// replay tracks one game while its rows stream past. Archive shards keep
// a game's rows contiguous and turn-ordered, so a single replay at a
// time is enough.
type replay struct {
	gameID  string
	encoder *convert.Encoder
	state   *game.GameState
	broken  bool
}

func newReplay(row store.ArchiveTurnRow) *replay {
	if row.Rows != row.Cols || row.Rows < 2 || row.Rows > game.MaxBoardSize {
		return &replay{gameID: row.GameID, broken: true}
	}
	return &replay{
		gameID:  row.GameID,
		encoder: convert.NewEncoder(int(row.Rows), int(row.Cols)),
		state:   game.NewGame(int(row.Rows)),
	}
}

// next encodes the current position as a training row and then advances
// the replay by the archived move. A row that can't be replayed marks
// the rest of the game broken rather than emitting misaligned planes.
func (r *replay) next(row store.ArchiveTurnRow) (store.TrainingRow, bool) {
	if r.broken {
		return store.TrainingRow{}, false
	}
	if int32(r.state.NextPlayer()) != row.Color {
		r.broken = true
		return store.TrainingRow{}, false
	}

	move, err := r.encoder.DecodeMoveIndex(int(row.Move))
	if err != nil {
		r.broken = true
		return store.TrainingRow{}, false
	}

	numMoves := r.encoder.NumMoves()
	policy := row.PolicyProbs
	if len(policy) != numMoves {
		// Older shards may omit policy_probs; fall back to a one-hot
		// distribution derived from the chosen move.
		policy = make([]float32, numMoves)
		policy[int(row.Move)] = 1.0
	}

	planesPtr := r.encoder.StatePlanes(r.state)
	planes := make([]float32, len(*planesPtr))
	copy(planes, *planesPtr)
	r.encoder.PutPlanes(planesPtr)

	out := store.TrainingRow{
		GameID: row.GameID,
		Turn:   row.Turn,
		Color:  row.Color,
		Rows:   row.Rows,
		Cols:   row.Cols,
		Planes: planes,
		Policy: policy,
		Value:  row.Value,
		Source: row.Source,
	}

	next, err := r.state.ApplyMove(move)
	if err != nil {
		r.broken = true
		return store.TrainingRow{}, false
	}
	r.state = next
	return out, true
}

func convertOne(inPath string, outPath string) (int, error) {
	inF, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer inF.Close()

	reader := parquet.NewGenericReader[store.ArchiveTurnRow](inF)
	defer reader.Close()

	outTmp := outPath + ".tmp"
	_ = os.Remove(outTmp)
	outF, err := os.OpenFile(outTmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}

	writer := parquet.NewGenericWriter[store.TrainingRow](
		outF,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("planes"),
	)
	writer.SetKeyValueMetadata("schema", "training_row_v1")

	defer func() {
		_ = writer.Close()
		_ = outF.Close()
	}()

	buf := make([]store.ArchiveTurnRow, 256)
	outBuf := make([]store.TrainingRow, 0, 2048)
	rowsWritten := 0

	flush := func() error {
		if len(outBuf) == 0 {
			return nil
		}
		if _, err := writer.Write(outBuf); err != nil {
			return err
		}
		rowsWritten += len(outBuf)
		outBuf = outBuf[:0]
		return nil
	}

	var current *replay

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			for i := 0; i < n; i++ {
				row := buf[i]
				if row.Move < 0 {
					continue
				}
				if current == nil || current.gameID != row.GameID {
					current = newReplay(row)
				}

				out, ok := current.next(row)
				if !ok {
					continue
				}
				outBuf = append(outBuf, out)

				if len(outBuf) >= 2048 {
					if err := flush(); err != nil {
						return 0, err
					}
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
	}

	if err := flush(); err != nil {
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}
	if err := outF.Sync(); err != nil {
		return 0, err
	}
	if err := outF.Close(); err != nil {
		return 0, err
	}

	if rowsWritten == 0 {
		_ = os.Remove(outTmp)
		return 0, nil
	}

	if err := os.Rename(outTmp, outPath); err != nil {
		_ = os.Remove(outTmp)
		return 0, err
	}
	return rowsWritten, nil
}
