package annotate

import "unicode"

// HangulTolerancePercent is the share of Hangul characters (relative to
// Han characters) still considered Korean loan-word noise when deciding
// whether a lyric is Chinese. Changing this silently changes which songs
// skip soramimi generation, so it stays a named, tested constant.
const HangulTolerancePercent = 10

// HasKanji reports whether s contains at least one Han character.
func HasKanji(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// HasKana reports whether s contains hiragana or katakana.
func HasKana(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			return true
		}
	}
	return false
}

// HasHangul reports whether s contains Hangul.
func HasHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

// IsASCIIOnly reports whether s consists entirely of ASCII characters.
func IsASCIIOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}

// LyricsAreMostlyChinese reports whether the lyric as a whole is Chinese:
// at least one Han character, no kana at all, and Hangul not exceeding
// the loan-word tolerance relative to the Han count. Used to skip
// generating same-script phonetic mimicry.
func LyricsAreMostlyChinese(texts []string) bool {
	var han, kana, hangul int
	for _, text := range texts {
		for _, r := range text {
			switch {
			case unicode.Is(unicode.Han, r):
				han++
			case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
				kana++
			case unicode.Is(unicode.Hangul, r):
				hangul++
			}
		}
	}

	if han == 0 || kana > 0 {
		return false
	}
	return hangul*100 <= han*HangulTolerancePercent
}
