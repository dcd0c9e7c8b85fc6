package store

import (
	"time"

	"lyrics-annotator-go/services/annotate"
	"lyrics-annotator-go/services/lyrics"
)

// SongDocument is the persisted record for one song: the resolved
// lyrics plus every annotation set derived from them. Annotation sets
// are only meaningful against the lyrics they were generated from;
// callers clear them when the lyrics source changes.
type SongDocument struct {
	SongID string           `json:"songId"`
	Lyrics *lyrics.Document `json:"lyrics,omitempty"`

	// Translations and Soramimi are keyed by target language tag;
	// furigana has a single slot. A translation is one LRC-shaped
	// multi-line string, each line carrying its source line's time tag.
	Translations map[string]string               `json:"translations,omitempty"`
	Furigana     [][]annotate.Segment            `json:"furigana,omitempty"`
	Soramimi     map[string][][]annotate.Segment `json:"soramimi,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Projection selects which fields Get materializes.
type Projection uint8

const (
	ProjLyrics Projection = 1 << iota
	ProjTranslations
	ProjFurigana
	ProjSoramimi

	ProjAll = ProjLyrics | ProjTranslations | ProjFurigana | ProjSoramimi
)

// FieldAction controls what Set does with one document field.
type FieldAction int

const (
	Keep    FieldAction = iota // leave the stored value untouched
	Replace                    // overwrite with the partial document's value
	Clear                      // null out the stored value
)

// PreserveFlags carries one FieldAction per document field, so a caller
// can replace lyrics while explicitly clearing stale annotations, or
// update one annotation set without touching the others.
type PreserveFlags struct {
	Lyrics       FieldAction
	Translations FieldAction
	Furigana     FieldAction
	Soramimi     FieldAction
}

// project returns a copy of doc narrowed to the requested fields.
func (doc *SongDocument) project(proj Projection) *SongDocument {
	out := &SongDocument{
		SongID:    doc.SongID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if proj&ProjLyrics != 0 {
		out.Lyrics = doc.Lyrics
	}
	if proj&ProjTranslations != 0 {
		out.Translations = doc.Translations
	}
	if proj&ProjFurigana != 0 {
		out.Furigana = doc.Furigana
	}
	if proj&ProjSoramimi != 0 {
		out.Soramimi = doc.Soramimi
	}
	return out
}
