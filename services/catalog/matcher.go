package catalog

import (
	"sort"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	log "github.com/sirupsen/logrus"

	"lyrics-annotator-go/logcolors"
)

const (
	titleWeight  = 0.6
	artistWeight = 0.4
)

// ScoredCandidate pairs a catalog candidate with its match score
// against the requested title/artist.
type ScoredCandidate struct {
	Candidate
	MatchScore float64 `json:"matchScore"`
}

// ScoreCandidates computes a weighted similarity score for every
// candidate and returns them sorted descending by score. The sort is
// stable, so equally-scored candidates keep their catalog order.
func ScoreCandidates(candidates []Candidate, title, artist string) []ScoredCandidate {
	targetTitle := normalizeForMatch(title)
	targetArtist := normalizeForMatch(artist)

	scored := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		titleSim := strutil.Similarity(normalizeForMatch(c.Song), targetTitle, metrics.NewJaroWinkler())
		artistSim := strutil.Similarity(normalizeForMatch(c.Singer), targetArtist, metrics.NewJaroWinkler())

		score := titleWeight * titleSim
		if targetArtist == "" {
			// No artist to compare against; score on title alone.
			score = titleSim
		} else {
			score += artistWeight * artistSim
		}

		scored[i] = ScoredCandidate{Candidate: c, MatchScore: score}
		log.Debugf("%s %q / %q -> %.3f", logcolors.LogTrackScore, c.Song, c.Singer, score)
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].MatchScore > scored[b].MatchScore
	})

	if len(scored) > 0 {
		log.Debugf("%s %q / %q (%.3f)", logcolors.LogBestMatch,
			scored[0].Song, scored[0].Singer, scored[0].MatchScore)
	}
	return scored
}

// normalizeForMatch lower-cases, strips punctuation and symbols, folds
// script variants to Simplified, and collapses whitespace, so similarity
// compares content rather than formatting.
func normalizeForMatch(s string) string {
	s = ToSimplified(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) && !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
