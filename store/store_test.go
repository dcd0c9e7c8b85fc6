package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lyrics-annotator-go/services/annotate"
	"lyrics-annotator-go/services/lyrics"
)

// setupTestStore creates a temporary store for testing
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test_store.db")
	backupPath := filepath.Join(tmpDir, "backups")

	s, err := New(dbPath, backupPath, 0)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return s, func() { s.Close() }
}

func sampleDocument(songID string) *SongDocument {
	return &SongDocument{
		SongID: songID,
		Lyrics: &lyrics.Document{
			PlainText: "[00:01.00]星\n[00:02.00]月",
			SourceRef: lyrics.Source{CatalogHash: "hash-a", Title: "Test", Artist: "Artist"},
		},
		Translations: map[string]string{"en": "[00:01.00]star\n[00:02.00]moon"},
		Furigana:     [][]annotate.Segment{{{Text: "星", Reading: "ほし"}}, {{Text: "月", Reading: "つき"}}},
	}
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "store.db")
	backupPath := filepath.Join(tmpDir, "backups")

	s, err := New(dbPath, backupPath, 0)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if s.db == nil {
		t.Error("Expected database to be initialized")
	}
	if s.compressionCutoff != DefaultCompressionCutoffBytes {
		t.Errorf("Expected default cutoff %d, got %d", DefaultCompressionCutoffBytes, s.compressionCutoff)
	}
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		t.Error("Expected backup directory to be created")
	}
}

func TestSetAndGet(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	doc := sampleDocument("song1")
	err := s.Set("song1", doc, PreserveFlags{Lyrics: Replace, Translations: Replace, Furigana: Replace})
	if err != nil {
		t.Fatalf("Failed to set document: %v", err)
	}

	got, err := s.Get("song1", ProjAll)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a document, got nil")
	}
	if got.Lyrics == nil || got.Lyrics.SourceRef.CatalogHash != "hash-a" {
		t.Errorf("Lyrics not round-tripped: %+v", got.Lyrics)
	}
	if got.Translations["en"] != "[00:01.00]star\n[00:02.00]moon" {
		t.Errorf("Translations not round-tripped: %+v", got.Translations)
	}
	if got.Furigana[0][0].Reading != "ほし" {
		t.Errorf("Furigana not round-tripped: %+v", got.Furigana)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}
}

func TestGetNonExistent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	doc, err := s.Get("missing", ProjAll)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc != nil {
		t.Errorf("Expected nil for missing document, got %+v", doc)
	}
}

func TestGetProjection(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.Set("song1", sampleDocument("song1"), PreserveFlags{Lyrics: Replace, Translations: Replace, Furigana: Replace}); err != nil {
		t.Fatalf("Failed to set document: %v", err)
	}

	got, err := s.Get("song1", ProjLyrics)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if got.Lyrics == nil {
		t.Error("Expected projected lyrics")
	}
	if got.Translations != nil || got.Furigana != nil || got.Soramimi != nil {
		t.Errorf("Projection leaked unrequested fields: %+v", got)
	}
}

func TestPreserveFlags(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.Set("song1", sampleDocument("song1"), PreserveFlags{Lyrics: Replace, Translations: Replace, Furigana: Replace}); err != nil {
		t.Fatalf("Failed to seed document: %v", err)
	}

	// Replace lyrics while clearing furigana; translations use Keep and
	// must survive even though the partial document carries none.
	newLyrics := &SongDocument{
		Lyrics: &lyrics.Document{
			PlainText: "[00:01.00]different",
			SourceRef: lyrics.Source{CatalogHash: "hash-b"},
		},
	}
	err := s.Set("song1", newLyrics, PreserveFlags{Lyrics: Replace, Furigana: Clear})
	if err != nil {
		t.Fatalf("Failed to update document: %v", err)
	}

	got, err := s.Get("song1", ProjAll)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if got.Lyrics.SourceRef.CatalogHash != "hash-b" {
		t.Errorf("Lyrics not replaced: %+v", got.Lyrics)
	}
	if got.Furigana != nil {
		t.Errorf("Furigana not cleared: %+v", got.Furigana)
	}
	if got.Translations == nil || got.Translations["en"] != "[00:01.00]star\n[00:02.00]moon" {
		t.Errorf("Kept translations lost: %+v", got.Translations)
	}
}

func TestCompressionAboveCutoff(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	// Well above the cutoff once marshaled.
	big := &SongDocument{
		Lyrics: &lyrics.Document{PlainText: strings.Repeat("[00:01.00]long line of lyrics\n", 100)},
	}
	if err := s.Set("big", big, PreserveFlags{Lyrics: Replace}); err != nil {
		t.Fatalf("Failed to set document: %v", err)
	}

	v, ok := s.memCache.Load("big")
	if !ok {
		t.Fatal("Expected record in memory cache")
	}
	if !v.(record).Compressed {
		t.Error("Expected large document to be compressed")
	}

	got, err := s.Get("big", ProjLyrics)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if got.Lyrics.PlainText != big.Lyrics.PlainText {
		t.Error("Compressed document did not round-trip")
	}
}

func TestSmallDocumentStaysRaw(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	small := &SongDocument{Lyrics: &lyrics.Document{PlainText: "[00:01.00]hi"}}
	if err := s.Set("small", small, PreserveFlags{Lyrics: Replace}); err != nil {
		t.Fatalf("Failed to set document: %v", err)
	}

	v, ok := s.memCache.Load("small")
	if !ok {
		t.Fatal("Expected record in memory cache")
	}
	if v.(record).Compressed {
		t.Error("Expected small document to stay uncompressed")
	}
}

func TestDelete(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.Set("song1", sampleDocument("song1"), PreserveFlags{Lyrics: Replace}); err != nil {
		t.Fatalf("Failed to set document: %v", err)
	}
	if err := s.Delete("song1"); err != nil {
		t.Fatalf("Failed to delete document: %v", err)
	}

	got, err := s.Get("song1", ProjAll)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil after delete, got %+v", got)
	}
}

func TestClear(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Set(id, sampleDocument(id), PreserveFlags{Lyrics: Replace}); err != nil {
			t.Fatalf("Failed to set document %s: %v", id, err)
		}
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Failed to clear store: %v", err)
	}

	numDocs, _ := s.Stats()
	if numDocs != 0 {
		t.Errorf("Expected 0 documents after clear, got %d", numDocs)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "store.db")
	backupPath := filepath.Join(tmpDir, "backups")

	s, err := New(dbPath, backupPath, 0)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.Set("song1", sampleDocument("song1"), PreserveFlags{Lyrics: Replace, Translations: Replace}); err != nil {
		t.Fatalf("Failed to set document: %v", err)
	}
	s.Close()

	reopened, err := New(dbPath, backupPath, 0)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get("song1", ProjAll)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if got == nil || got.Lyrics == nil || got.Translations["en"] != "[00:01.00]star\n[00:02.00]moon" {
		t.Errorf("Document did not survive reopen: %+v", got)
	}
}

func TestBackupAndRestore(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.Set("song1", sampleDocument("song1"), PreserveFlags{Lyrics: Replace}); err != nil {
		t.Fatalf("Failed to set document: %v", err)
	}

	backupPath, err := s.Backup()
	if err != nil {
		t.Fatalf("Failed to create backup: %v", err)
	}
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		t.Fatal("Backup file was not created")
	}

	// Mutate, then restore the snapshot.
	if err := s.Delete("song1"); err != nil {
		t.Fatalf("Failed to delete document: %v", err)
	}
	if err := s.RestoreFromBackup(filepath.Base(backupPath)); err != nil {
		t.Fatalf("Failed to restore backup: %v", err)
	}

	got, err := s.Get("song1", ProjAll)
	if err != nil {
		t.Fatalf("Failed to get document: %v", err)
	}
	if got == nil {
		t.Error("Expected document back after restore")
	}

	backups, err := s.ListBackups()
	if err != nil {
		t.Fatalf("Failed to list backups: %v", err)
	}
	if len(backups) != 1 {
		t.Errorf("Expected 1 backup, got %d", len(backups))
	}
}

func TestBackupAndClear(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	if err := s.Set("song1", sampleDocument("song1"), PreserveFlags{Lyrics: Replace}); err != nil {
		t.Fatalf("Failed to set document: %v", err)
	}

	backupPath, err := s.BackupAndClear()
	if err != nil {
		t.Fatalf("Failed to backup and clear: %v", err)
	}
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		t.Error("Backup file was not created")
	}

	numDocs, _ := s.Stats()
	if numDocs != 0 {
		t.Errorf("Expected 0 documents after clear, got %d", numDocs)
	}
}
