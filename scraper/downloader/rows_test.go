package downloader

import (
	"testing"

	"github.com/sente-go/sente/game"
)

func testRecord() *Record {
	return &Record{
		ID:        "g1",
		BoardSize: 5,
		Komi:      7.5,
		Result:    "B+Resign",
		Moves: []game.Move{
			game.PlayMove(game.Point{Row: 3, Col: 3}),
			game.PlayMove(game.Point{Row: 2, Col: 2}),
			game.PlayMove(game.Point{Row: 3, Col: 2}),
			game.PassMove(),
		},
	}
}

func TestBuildArchiveRows(t *testing.T) {
	rows, err := BuildArchiveRows(testRecord(), "test")
	if err != nil {
		t.Fatalf("BuildArchiveRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}

	// Black won: rows where black is to move carry +1.
	for i, row := range rows {
		want := float32(-1)
		if game.Color(row.Color) == game.Black {
			want = 1
		}
		if row.Value != want {
			t.Errorf("row %d: value %f, want %f", i, row.Value, want)
		}
	}

	// Turn 2 has stones from turns 0 and 1 on the board.
	if len(rows[2].BlackRow) != 1 || len(rows[2].WhiteRow) != 1 {
		t.Fatalf("row 2 stones: black=%d white=%d", len(rows[2].BlackRow), len(rows[2].WhiteRow))
	}
	// Pass encodes as the trailing action index.
	if rows[3].Move != 25 {
		t.Errorf("pass encoded as %d, want 25", rows[3].Move)
	}
}

func TestBuildArchiveRowsRejectsUnknownResult(t *testing.T) {
	record := testRecord()
	record.Result = "Void"
	if _, err := BuildArchiveRows(record, "test"); err == nil {
		t.Fatal("expected error for unknown result")
	}
}

func TestBuildArchiveRowsRejectsIllegalReplay(t *testing.T) {
	record := testRecord()
	// Same point twice.
	record.Moves = []game.Move{
		game.PlayMove(game.Point{Row: 3, Col: 3}),
		game.PlayMove(game.Point{Row: 3, Col: 3}),
	}
	if _, err := BuildArchiveRows(record, "test"); err == nil {
		t.Fatal("expected error for illegal replay")
	}
}
