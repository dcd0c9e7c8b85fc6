package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"lyrics-annotator-go/utils"
)

const bucketName = "songdocs"

// DefaultCompressionCutoffBytes is the marshaled-document size above
// which values are gzip-compressed before hitting disk. Small documents
// are stored raw; compressing them costs more than it saves.
const DefaultCompressionCutoffBytes = 500

// Store wraps BoltDB with an in-memory cache for fast access. One
// bucket, one JSON-encoded SongDocument per song ID.
type Store struct {
	db                *bolt.DB
	memCache          sync.Map
	dbPath            string
	backupPath        string
	compressionCutoff int
}

// record is the on-disk envelope around one marshaled document.
type record struct {
	Compressed bool   `json:"compressed"`
	Value      string `json:"value"`
}

// New opens (or creates) the document store at dbPath.
// compressionCutoff <= 0 selects the default cutoff.
func New(dbPath, backupPath string, compressionCutoff int) (*Store, error) {
	if compressionCutoff <= 0 {
		compressionCutoff = DefaultCompressionCutoffBytes
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %v", err)
	}
	if err := os.MkdirAll(backupPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %v", err)
	}

	if info, err := os.Stat(dbPath); err == nil {
		log.Infof("[Store:Init] Found existing database file at: %s (size: %d bytes)", dbPath, info.Size())
	} else {
		log.Infof("[Store:Init] Creating new database file at: %s", dbPath)
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create store bucket: %v", err)
	}

	s := &Store{
		db:                db,
		dbPath:            dbPath,
		backupPath:        backupPath,
		compressionCutoff: compressionCutoff,
	}

	if err := s.loadToMemory(); err != nil {
		log.Warnf("[Store] Failed to preload documents to memory: %v", err)
	}

	log.Infof("[Store] Document store initialized at %s (compression cutoff: %d bytes)", dbPath, compressionCutoff)
	return s, nil
}

// loadToMemory loads all records from disk to the memory cache
func (s *Store) loadToMemory() error {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				log.Warnf("[Store] Failed to unmarshal record for song %s: %v", string(k), err)
				return nil // Continue to next entry
			}
			s.memCache.Store(string(k), rec)
			count++
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Infof("[Store] Loaded %d documents from disk to memory", count)
	return nil
}

// Get retrieves a song's document narrowed to the requested projection.
// A missing document returns (nil, nil).
func (s *Store) Get(songID string, proj Projection) (*SongDocument, error) {
	if v, ok := s.memCache.Load(songID); ok {
		doc, err := decodeRecord(v.(record))
		if err != nil {
			log.Errorf("[Store] Error decoding document for song %s: %v", songID, err)
			return nil, err
		}
		return doc.project(proj), nil
	}

	var rec record
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(songID))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	s.memCache.Store(songID, rec)
	doc, err := decodeRecord(rec)
	if err != nil {
		log.Errorf("[Store] Error decoding document for song %s: %v", songID, err)
		return nil, err
	}
	return doc.project(proj), nil
}

// Set applies a partial document to the stored one in a single
// read-modify-write transaction. Each field follows its PreserveFlags
// action; Keep leaves the stored value as-is even when the partial one
// carries data.
func (s *Store) Set(songID string, partial *SongDocument, flags PreserveFlags) error {
	now := time.Now()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		doc := &SongDocument{SongID: songID, CreatedAt: now}
		if data := b.Get([]byte(songID)); data != nil {
			var rec record
			if err := json.Unmarshal(data, &rec); err == nil {
				if existing, err := decodeRecord(rec); err == nil {
					doc = existing
				}
			}
			// A corrupt stored record is overwritten rather than kept.
		}

		switch flags.Lyrics {
		case Replace:
			doc.Lyrics = partial.Lyrics
		case Clear:
			doc.Lyrics = nil
		}
		switch flags.Translations {
		case Replace:
			doc.Translations = partial.Translations
		case Clear:
			doc.Translations = nil
		}
		switch flags.Furigana {
		case Replace:
			doc.Furigana = partial.Furigana
		case Clear:
			doc.Furigana = nil
		}
		switch flags.Soramimi {
		case Replace:
			doc.Soramimi = partial.Soramimi
		case Clear:
			doc.Soramimi = nil
		}
		doc.SongID = songID
		doc.UpdatedAt = now

		rec, err := s.encodeDocument(doc)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(songID), data); err != nil {
			return err
		}

		s.memCache.Store(songID, rec)
		return nil
	})
}

// Delete removes a song's document
func (s *Store) Delete(songID string) error {
	s.memCache.Delete(songID)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete([]byte(songID))
	})
}

// Clear removes all documents
func (s *Store) Clear() error {
	s.memCache.Range(func(key, value interface{}) bool {
		s.memCache.Delete(key)
		return true
	})

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}

// Stats returns store statistics
func (s *Store) Stats() (numDocs int, sizeInKB int) {
	s.memCache.Range(func(k, v interface{}) bool {
		rec := v.(record)
		numDocs++
		sizeInKB += len(k.(string)) + len(rec.Value)
		return true
	})
	sizeInKB = sizeInKB / 1024
	return
}

// encodeDocument marshals a document and compresses it when the
// payload exceeds the cutoff.
func (s *Store) encodeDocument(doc *SongDocument) (record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return record{}, err
	}
	if len(data) > s.compressionCutoff {
		compressed, err := utils.CompressString(string(data))
		if err != nil {
			return record{}, err
		}
		return record{Compressed: true, Value: compressed}, nil
	}
	return record{Value: string(data)}, nil
}

func decodeRecord(rec record) (*SongDocument, error) {
	raw := rec.Value
	if rec.Compressed {
		decompressed, err := utils.DecompressString(raw)
		if err != nil {
			return nil, err
		}
		raw = decompressed
	}
	var doc SongDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Backup creates a backup of the store database file
// Returns the backup file path
func (s *Store) Backup() (string, error) {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	backupFileName := fmt.Sprintf("store_backup_%s.db", timestamp)
	backupFilePath := filepath.Join(s.backupPath, backupFileName)

	log.Infof("[Store:Backup] Creating backup at: %s", backupFilePath)

	// Close the database temporarily to ensure all data is flushed
	if err := s.db.Close(); err != nil {
		return "", fmt.Errorf("failed to close database for backup: %v", err)
	}

	if err := copyFile(s.dbPath, backupFilePath); err != nil {
		// Try to reopen the database even if backup failed
		s.reopenDatabase()
		return "", fmt.Errorf("failed to copy database file: %v", err)
	}

	if err := s.reopenDatabase(); err != nil {
		return "", fmt.Errorf("failed to reopen database after backup: %v", err)
	}

	log.Infof("[Store:Backup] Backup created successfully: %s", backupFilePath)
	return backupFilePath, nil
}

// BackupAndClear creates a backup of the store and then clears it
func (s *Store) BackupAndClear() (string, error) {
	backupPath, err := s.Backup()
	if err != nil {
		return "", fmt.Errorf("failed to create backup: %v", err)
	}

	if err := s.Clear(); err != nil {
		return backupPath, fmt.Errorf("backup created but failed to clear store: %v", err)
	}

	log.Infof("[Store:Clear] Store cleared successfully (backup: %s)", backupPath)
	return backupPath, nil
}

// reopenDatabase reopens the database connection
func (s *Store) reopenDatabase() error {
	db, err := bolt.Open(s.dbPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %v", err)
	}
	s.db = db

	if err := s.loadToMemory(); err != nil {
		log.Warnf("[Store] Failed to reload documents to memory: %v", err)
	}
	return nil
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		return err
	}

	// Sync to ensure data is written to disk
	return destFile.Sync()
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BackupInfo contains metadata about a backup file
type BackupInfo struct {
	FileName  string    `json:"fileName"`
	FilePath  string    `json:"filePath"`
	Size      int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListBackups returns a list of all available backup files
func (s *Store) ListBackups() ([]BackupInfo, error) {
	var backups []BackupInfo

	entries, err := os.ReadDir(s.backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return backups, nil // No backups directory yet
		}
		return nil, fmt.Errorf("failed to read backup directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".db" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Warnf("[Store:Backups] Failed to get info for %s: %v", entry.Name(), err)
			continue
		}

		backups = append(backups, BackupInfo{
			FileName:  entry.Name(),
			FilePath:  filepath.Join(s.backupPath, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	return backups, nil
}

// RestoreFromBackup replaces the current store database with a backup
// This will close the current database, replace the file, and reopen it
func (s *Store) RestoreFromBackup(backupFileName string) error {
	backupFilePath := filepath.Join(s.backupPath, backupFileName)

	if _, err := os.Stat(backupFilePath); os.IsNotExist(err) {
		return fmt.Errorf("backup file not found: %s", backupFileName)
	}
	if filepath.Ext(backupFileName) != ".db" {
		return fmt.Errorf("invalid backup file: must be a .db file")
	}

	log.Infof("[Store:Restore] Starting restore from backup: %s", backupFileName)

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close current database: %v", err)
	}

	// Keep a copy of the current database in case the restore fails
	currentBackupPath := s.dbPath + ".pre-restore"
	if err := copyFile(s.dbPath, currentBackupPath); err != nil {
		s.reopenDatabase()
		return fmt.Errorf("failed to backup current database: %v", err)
	}

	if err := copyFile(backupFilePath, s.dbPath); err != nil {
		copyFile(currentBackupPath, s.dbPath)
		s.reopenDatabase()
		return fmt.Errorf("failed to restore backup: %v", err)
	}

	os.Remove(currentBackupPath)

	// Drop stale in-memory state before reopening with restored data
	s.memCache.Range(func(key, value interface{}) bool {
		s.memCache.Delete(key)
		return true
	})

	if err := s.reopenDatabase(); err != nil {
		return fmt.Errorf("failed to reopen database after restore: %v", err)
	}

	log.Infof("[Store:Restore] Successfully restored from backup: %s", backupFileName)
	return nil
}

// DeleteBackup deletes a specific backup file
func (s *Store) DeleteBackup(backupFileName string) error {
	backupFilePath := filepath.Join(s.backupPath, backupFileName)

	if filepath.Ext(backupFileName) != ".db" {
		return fmt.Errorf("invalid backup file: must be a .db file")
	}
	if _, err := os.Stat(backupFilePath); os.IsNotExist(err) {
		return fmt.Errorf("backup file not found: %s", backupFileName)
	}

	if err := os.Remove(backupFilePath); err != nil {
		return fmt.Errorf("failed to delete backup: %v", err)
	}

	log.Infof("[Store:Backup] Deleted backup: %s", backupFileName)
	return nil
}
