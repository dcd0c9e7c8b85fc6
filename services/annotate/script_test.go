package annotate

import "testing"

func TestCharacterClassDetection(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		kanji  bool
		kana   bool
		hangul bool
		ascii  bool
	}{
		{"plain ascii", "Hello world 123!", false, false, false, true},
		{"kanji only", "夜空星", true, false, false, false},
		{"hiragana", "よぞら", false, true, false, false},
		{"katakana", "メロディ", false, true, false, false},
		{"mixed japanese", "夜空のメロディ", true, true, false, false},
		{"hangul", "안녕하세요", false, false, true, false},
		{"empty", "", false, false, false, true},
		{"latin accents are not ascii", "café", false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasKanji(tt.input); got != tt.kanji {
				t.Errorf("HasKanji(%q) = %v, want %v", tt.input, got, tt.kanji)
			}
			if got := HasKana(tt.input); got != tt.kana {
				t.Errorf("HasKana(%q) = %v, want %v", tt.input, got, tt.kana)
			}
			if got := HasHangul(tt.input); got != tt.hangul {
				t.Errorf("HasHangul(%q) = %v, want %v", tt.input, got, tt.hangul)
			}
			if got := IsASCIIOnly(tt.input); got != tt.ascii {
				t.Errorf("IsASCIIOnly(%q) = %v, want %v", tt.input, got, tt.ascii)
			}
		})
	}
}

func TestLyricsAreMostlyChinese(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  bool
	}{
		{
			name:  "pure chinese",
			lines: []string{"月亮代表我的心", "你问我爱你有多深"},
			want:  true,
		},
		{
			name:  "japanese has kana",
			lines: []string{"夜空のメロディ", "星が輝く"},
			want:  false,
		},
		{
			name:  "no han at all",
			lines: []string{"hello", "world"},
			want:  false,
		},
		{
			name:  "korean dominant",
			lines: []string{"사랑해요 사랑해요 사랑해요", "心"},
			want:  false,
		},
		{
			name:  "single kana disqualifies",
			lines: []string{"月亮代表我的心", "の"},
			want:  false,
		},
		{
			name:  "empty input",
			lines: nil,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LyricsAreMostlyChinese(tt.lines); got != tt.want {
				t.Errorf("LyricsAreMostlyChinese(%v) = %v, want %v", tt.lines, got, tt.want)
			}
		})
	}
}

// Pins the exact 10% boundary: 1 Hangul per 10 Han is tolerated, more is not.
func TestHangulToleranceBoundary(t *testing.T) {
	tenHan := "月亮代表我的心你问我" // 10 Han characters

	if !LyricsAreMostlyChinese([]string{tenHan, "한"}) {
		t.Error("1 Hangul against 10 Han should be within tolerance")
	}
	if LyricsAreMostlyChinese([]string{tenHan, "한글"}) {
		t.Error("2 Hangul against 10 Han should exceed tolerance")
	}
	if HangulTolerancePercent != 10 {
		t.Errorf("HangulTolerancePercent = %d, want 10", HangulTolerancePercent)
	}
}
