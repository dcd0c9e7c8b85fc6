package songdoc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-annotator-go/logcolors"
	"lyrics-annotator-go/services/annotate"
	"lyrics-annotator-go/services/catalog"
	"lyrics-annotator-go/services/lyrics"
	"lyrics-annotator-go/store"
)

// ErrNoMatch is returned when the catalog yields no candidate similar
// enough to the requested title/artist.
var ErrNoMatch = errors.New("no sufficiently similar lyrics source")

// ErrNoLyrics is returned when a resolved source has no downloadable
// lyrics payload.
var ErrNoLyrics = errors.New("source has no lyrics payload")

// ValidationError reports a caller-supplied value that fails shape
// validation. Fatal to the single request, never to the process.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Store is the persistence collaborator.
type Store interface {
	Get(songID string, proj store.Projection) (*store.SongDocument, error)
	Set(songID string, partial *store.SongDocument, flags store.PreserveFlags) error
}

// Catalog is the external lyrics catalog collaborator.
type Catalog interface {
	Search(ctx context.Context, keyword string) ([]catalog.Candidate, error)
	FetchLyricsBlob(ctx context.Context, id, accessKey, format string) (string, error)
	FetchCoverURL(ctx context.Context, hash, albumID string) (string, error)
}

// Config holds orchestrator tunables. Zero values select the defaults.
type Config struct {
	MinMatchScore     float64
	GenerationTimeout time.Duration

	// DisableAnnotationCache forces regeneration on every request,
	// leaving stored sets untouched. Off by default.
	DisableAnnotationCache bool
}

const (
	defaultMinMatchScore     = 0.6
	defaultGenerationTimeout = 2 * time.Minute
)

// Service orchestrates lyrics resolution, annotation generation, and
// document caching for one store/catalog/engine triple.
type Service struct {
	store   Store
	catalog Catalog
	engine  *annotate.Engine
	cfg     Config

	inflight inflightMap
}

func New(st Store, cat Catalog, engine *annotate.Engine, cfg Config) *Service {
	if cfg.MinMatchScore <= 0 {
		cfg.MinMatchScore = defaultMinMatchScore
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	return &Service{store: st, catalog: cat, engine: engine, cfg: cfg}
}

// FetchRequest describes one lyrics resolution. Hash/AccessKey select
// an explicit catalog candidate; otherwise the best-scoring match for
// Title/Artist is used.
type FetchRequest struct {
	SongID    string
	Title     string
	Artist    string
	Album     string
	Hash      string
	AccessKey string
	AlbumID   string
	Force     bool
}

// LyricsResult is the outcome of FetchLyrics.
type LyricsResult struct {
	Document   *lyrics.Document   `json:"document"`
	Lines      []lyrics.TimedLine `json:"lines"`
	CoverURL   string             `json:"coverUrl,omitempty"`
	MatchScore float64            `json:"matchScore,omitempty"`
	FromCache  bool               `json:"fromCache"`
}

// SearchSources returns catalog candidates scored against the given
// title/artist, best first.
func (s *Service) SearchSources(ctx context.Context, title, artist string) ([]catalog.ScoredCandidate, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &ValidationError{Field: "s", Msg: "title is required"}
	}

	keyword := strings.TrimSpace(title + " " + artist)
	candidates, err := s.catalog.Search(ctx, keyword)
	if err != nil {
		return nil, err
	}
	return catalog.ScoreCandidates(candidates, title, artist), nil
}

// FetchLyrics resolves a lyrics source for the song, downloads and
// decodes its payload, and persists the document. A stored document
// with a matching catalog hash is served as-is unless Force is set. A
// changed hash or Force invalidates all stored annotations before the
// new lyrics are written.
func (s *Service) FetchLyrics(ctx context.Context, req FetchRequest) (*LyricsResult, error) {
	if req.SongID == "" {
		return nil, &ValidationError{Field: "id", Msg: "song id is required"}
	}

	stored, err := s.store.Get(req.SongID, store.ProjLyrics)
	if err != nil {
		log.Warnf("%s Store read failed for %s, treating as miss: %v", logcolors.LogSongDoc, req.SongID, err)
		stored = nil
	}

	if !req.Force && stored != nil && stored.Lyrics != nil {
		if req.Hash == "" || stored.Lyrics.SourceRef.CatalogHash == req.Hash {
			src := stored.Lyrics.SourceRef
			return &LyricsResult{
				Document:  stored.Lyrics,
				Lines:     lyrics.ParseTimedLines(stored.Lyrics.PlainText, stored.Lyrics.RichText, src.Title, src.Artist),
				FromCache: true,
			}, nil
		}
	}

	source, accessKey, matchScore, err := s.resolveSource(ctx, req)
	if err != nil {
		return nil, err
	}

	doc, err := s.downloadDocument(ctx, source, accessKey)
	if err != nil {
		return nil, err
	}

	// Stale annotations must never survive a source change: they are
	// cleared in the same write that lands the new lyrics.
	annotations := store.Keep
	if req.Force || (stored != nil && stored.Lyrics != nil && stored.Lyrics.SourceRef.CatalogHash != source.CatalogHash) {
		annotations = store.Clear
		log.Infof("%s Source changed for %s, clearing stored annotations", logcolors.LogSongDoc, req.SongID)
	}
	err = s.store.Set(req.SongID, &store.SongDocument{Lyrics: doc}, store.PreserveFlags{
		Lyrics:       store.Replace,
		Translations: annotations,
		Furigana:     annotations,
		Soramimi:     annotations,
	})
	if err != nil {
		log.Errorf("%s Failed to persist document for %s: %v", logcolors.LogSongDoc, req.SongID, err)
	}

	coverURL, err := s.catalog.FetchCoverURL(ctx, source.CatalogHash, source.CatalogAlbumID)
	if err != nil {
		log.Debugf("%s No cover for %s: %v", logcolors.LogSongDoc, req.SongID, err)
		coverURL = ""
	}

	return &LyricsResult{
		Document:   doc,
		Lines:      lyrics.ParseTimedLines(doc.PlainText, doc.RichText, source.Title, source.Artist),
		CoverURL:   coverURL,
		MatchScore: matchScore,
	}, nil
}

// resolveSource picks the lyrics source: the explicitly requested
// candidate when hash+accessKey are supplied, else the best-scoring
// search result above the similarity floor.
func (s *Service) resolveSource(ctx context.Context, req FetchRequest) (lyrics.Source, string, float64, error) {
	if req.Hash != "" && req.AccessKey != "" {
		return lyrics.Source{
			CatalogHash:    req.Hash,
			CatalogAlbumID: req.AlbumID,
			Title:          req.Title,
			Artist:         req.Artist,
			Album:          req.Album,
		}, req.AccessKey, 0, nil
	}

	if strings.TrimSpace(req.Title) == "" {
		return lyrics.Source{}, "", 0, &ValidationError{Field: "s", Msg: "title is required when no hash is supplied"}
	}

	scored, err := s.SearchSources(ctx, req.Title, req.Artist)
	if err != nil {
		return lyrics.Source{}, "", 0, err
	}
	if len(scored) == 0 || scored[0].MatchScore < s.cfg.MinMatchScore {
		log.Infof("%s No match for %q / %q above %.2f", logcolors.LogSongDoc, req.Title, req.Artist, s.cfg.MinMatchScore)
		return lyrics.Source{}, "", 0, ErrNoMatch
	}

	best := scored[0]
	return lyrics.Source{
		CatalogHash:    best.ID,
		CatalogAlbumID: req.AlbumID,
		Title:          best.Song,
		Artist:         best.Singer,
		Album:          req.Album,
	}, best.AccessKey, best.MatchScore, nil
}

// downloadDocument fetches the word-timed container first and falls
// back to the plain timestamped format. Only the plain text is
// mandatory; a missing or undecodable container just means no word
// timings.
func (s *Service) downloadDocument(ctx context.Context, source lyrics.Source, accessKey string) (*lyrics.Document, error) {
	doc := &lyrics.Document{SourceRef: source}

	blob, err := s.catalog.FetchLyricsBlob(ctx, source.CatalogHash, accessKey, "krc")
	if err != nil {
		log.Warnf("%s Container fetch failed for %s: %v", logcolors.LogSongDoc, source.CatalogHash, err)
	} else if blob != "" {
		rich, derr := lyrics.DecodeContainer(blob)
		if derr != nil {
			log.Warnf("%s Container decode failed for %s, falling back to plain: %v", logcolors.LogSongDoc, source.CatalogHash, derr)
		} else {
			doc.RichText = rich
		}
	}

	blob, err = s.catalog.FetchLyricsBlob(ctx, source.CatalogHash, accessKey, "lrc")
	if err != nil {
		return nil, err
	}
	if blob == "" {
		return nil, ErrNoLyrics
	}
	plain, derr := lyrics.DecodeTimedPlain(blob)
	if derr != nil {
		return nil, derr
	}
	doc.PlainText = plain

	return doc, nil
}
