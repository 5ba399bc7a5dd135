package downloader

import (
	"fmt"

	"github.com/sente-go/sente/executor/convert"
	"github.com/sente-go/sente/game"
	"github.com/sente-go/sente/store"
)

// BuildArchiveRows replays a downloaded game and produces one archive
// row per turn, with values assigned from the recorded result. Games
// with an unknown result are rejected: without an outcome the rows have
// no value target.
func BuildArchiveRows(record *Record, source string) ([]store.ArchiveTurnRow, error) {
	winner, ok := record.Winner()
	if !ok {
		return nil, fmt.Errorf("game %s has no usable result %q", record.ID, record.Result)
	}

	encoder := convert.NewEncoder(record.BoardSize, record.BoardSize)
	state := game.NewGame(record.BoardSize)

	rows := make([]store.ArchiveTurnRow, 0, len(record.Moves))
	for i, move := range record.Moves {
		idx, err := encoder.MoveIndex(move)
		if err != nil {
			return nil, fmt.Errorf("game %s turn %d: %w", record.ID, i, err)
		}

		value := float32(-1)
		if state.NextPlayer() == winner {
			value = 1
		}

		row := store.ArchiveTurnRow{
			GameID: record.ID,
			Turn:   int32(i),
			Rows:   int32(record.BoardSize),
			Cols:   int32(record.BoardSize),
			Color:  int32(state.NextPlayer()),
			Move:   int32(idx),
			Value:  value,
			Source: source,
		}

		board := state.Board()
		for r := 1; r <= board.Rows; r++ {
			for c := 1; c <= board.Cols; c++ {
				p := game.Point{Row: r, Col: c}
				switch board.ColorAt(p) {
				case game.Black:
					row.BlackRow = append(row.BlackRow, int32(r))
					row.BlackCol = append(row.BlackCol, int32(c))
				case game.White:
					row.WhiteRow = append(row.WhiteRow, int32(r))
					row.WhiteCol = append(row.WhiteCol, int32(c))
				}
			}
		}

		rows = append(rows, row)

		next, err := state.ApplyMove(move)
		if err != nil {
			return nil, fmt.Errorf("game %s turn %d (%s): %w", record.ID, i, move, err)
		}
		state = next
	}

	return rows, nil
}
