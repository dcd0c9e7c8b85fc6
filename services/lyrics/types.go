package lyrics

// WordTiming is the start time of a single word within a line.
type WordTiming struct {
	Text        string `json:"text"`
	StartTimeMs int64  `json:"startTimeMs"`
}

// TimedLine is one parsed lyric line. Immutable once parsed; the slice
// index is the primary cross-reference key for every downstream
// annotation, so lines are never reordered or mutated in place.
type TimedLine struct {
	StartTimeMs int64        `json:"startTimeMs"`
	Text        string       `json:"text"`
	WordTimings []WordTiming `json:"wordTimings,omitempty"`
}

// Source identifies which upstream lyrics variant is in use. Two sources
// are the same iff CatalogHash matches; a changed hash invalidates all
// derived annotations.
type Source struct {
	CatalogHash    string `json:"catalogHash"`
	CatalogAlbumID string `json:"catalogAlbumId,omitempty"`
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Album          string `json:"album,omitempty"`
}

// Document holds the decoded lyric texts for one song. Regenerated
// wholesale on fetch, never partially patched.
type Document struct {
	PlainText string `json:"plainText"`
	RichText  string `json:"richText,omitempty"`
	SourceRef Source `json:"sourceRef"`
}
