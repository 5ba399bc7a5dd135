package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func sampleRows() []TrainingRow {
	return []TrainingRow{
		{
			GameID: "g1",
			Turn:   0,
			Color:  1,
			Rows:   5,
			Cols:   5,
			Planes: make([]float32, 11*5*5),
			Policy: make([]float32, 26),
			Value:  1,
			Source: "selfplay",
		},
		{
			GameID: "g1",
			Turn:   1,
			Color:  2,
			Rows:   5,
			Cols:   5,
			Planes: make([]float32, 11*5*5),
			Policy: make([]float32, 26),
			Value:  -1,
			Source: "selfplay",
		},
	}
}

func TestBatchWriterFinalize(t *testing.T) {
	dir := t.TempDir()

	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatalf("NewBatchWriter: %v", err)
	}
	if err := w.WriteRows(sampleRows()); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	w.NoteGameWritten()

	// A second game streams into the same batch file.
	second := sampleRows()
	second[0].GameID, second[1].GameID = "g2", "g2"
	if err := w.WriteRows(second); err != nil {
		t.Fatalf("WriteRows second game: %v", err)
	}
	w.NoteGameWritten()

	outPath, rows, games, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if rows != 4 || games != 2 {
		t.Fatalf("got rows=%d games=%d, want 4 and 2", rows, games)
	}
	if filepath.Dir(outPath) != dir {
		t.Fatalf("final file %s not in %s", outPath, dir)
	}

	got, err := parquet.ReadFile[TrainingRow](outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("read %d rows, want 4", len(got))
	}
	if got[0].GameID != "g1" || got[0].Value != 1 || got[1].Value != -1 {
		t.Fatalf("rows did not round-trip: %+v", got)
	}
	if got[2].GameID != "g2" || got[3].GameID != "g2" {
		t.Fatalf("second game rows did not round-trip: %+v", got[2:])
	}
	if len(got[0].Planes) != 11*5*5 || len(got[0].Policy) != 26 {
		t.Fatalf("unexpected plane/policy lengths: %d, %d", len(got[0].Planes), len(got[0].Policy))
	}
}

func TestBatchWriterEmptyFinalize(t *testing.T) {
	dir := t.TempDir()

	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatalf("NewBatchWriter: %v", err)
	}
	outPath, rows, _, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if outPath != "" || rows != 0 {
		t.Fatalf("empty batch should produce no file, got %q with %d rows", outPath, rows)
	}
	if _, err := os.Stat(w.TmpPath()); !os.IsNotExist(err) {
		t.Fatalf("tmp file should be removed, stat err: %v", err)
	}
}

func TestSingleGameWriters(t *testing.T) {
	dir := t.TempDir()

	trainPath := filepath.Join(dir, "g1_train.parquet")
	if err := WriteGameParquet(trainPath, sampleRows()); err != nil {
		t.Fatalf("WriteGameParquet: %v", err)
	}
	train, err := parquet.ReadFile[TrainingRow](trainPath)
	if err != nil {
		t.Fatalf("ReadFile train: %v", err)
	}
	if len(train) != 2 || train[1].Turn != 1 {
		t.Fatalf("training rows did not round-trip: %+v", train)
	}
	if _, err := os.Stat(trainPath + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind, stat err: %v", err)
	}

	archPath := filepath.Join(dir, "g1_archive.parquet")
	archRows := []ArchiveTurnRow{
		{GameID: "g1", Turn: 0, Rows: 5, Cols: 5, Color: 1, Move: 12, Value: 1, Source: "selfplay"},
	}
	if err := WriteArchiveParquet(archPath, archRows); err != nil {
		t.Fatalf("WriteArchiveParquet: %v", err)
	}
	arch, err := parquet.ReadFile[ArchiveTurnRow](archPath)
	if err != nil {
		t.Fatalf("ReadFile archive: %v", err)
	}
	if len(arch) != 1 || arch[0].Move != 12 {
		t.Fatalf("archive row did not round-trip: %+v", arch)
	}
}

func TestWriteArchiveBatchParquetAtomic(t *testing.T) {
	dir := t.TempDir()

	rows := []ArchiveTurnRow{
		{
			GameID:      "g2",
			Turn:        0,
			Rows:        9,
			Cols:        9,
			Color:       1,
			Move:        40,
			PolicyProbs: make([]float32, 82),
			Value:       1,
			Source:      "ogs",
		},
	}
	path, err := WriteArchiveBatchParquetAtomic(dir, rows)
	if err != nil {
		t.Fatalf("WriteArchiveBatchParquetAtomic: %v", err)
	}

	got, err := parquet.ReadFile[ArchiveTurnRow](path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 1 || got[0].GameID != "g2" || got[0].Move != 40 {
		t.Fatalf("archive row did not round-trip: %+v", got)
	}
}

func TestWrittenLogDedupe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "written.log")

	l, err := OpenWrittenLog(path)
	if err != nil {
		t.Fatalf("OpenWrittenLog: %v", err)
	}
	if err := l.Add("a"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.AddMany([]string{"a", "b", ""}); err != nil {
		t.Fatalf("AddMany: %v", err)
	}
	if !l.Has("a") || !l.Has("b") || l.Has("c") {
		t.Fatal("membership incorrect after adds")
	}
	if l.Count() != 2 {
		t.Fatalf("count = %d, want 2", l.Count())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and confirm the log survived.
	l2, err := OpenWrittenLog(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if l2.Count() != 2 || !l2.Has("b") {
		t.Fatalf("log did not persist, count=%d", l2.Count())
	}
}
