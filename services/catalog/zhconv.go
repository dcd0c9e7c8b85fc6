package catalog

// Script conversion between Simplified and Traditional Chinese for
// catalog queries and display. The table is deliberately restricted to
// characters with a one-to-one correspondence, so conversion is
// reversible: ToTraditional(ToSimplified(s)) == s for any string built
// from mapped or unmapped characters. Ambiguous characters (one
// simplified form with several traditional forms) are left untouched
// rather than guessed.

// conversionPairs holds alternating simplified/traditional runes.
const conversionPairs = "爱愛乐樂欢歡长長风風云雲飞飛梦夢泪淚听聽声聲时時间間对對们們这這还還没沒说說话話谁誰让讓过過开開亲親见見觉覺离離别別难難忆憶无無万萬与與终終红紅书書写寫东東门門问問闪閃阳陽阴陰雾霧灯燈独獨静靜乱亂头頭脸臉气氣习習单單双雙恋戀伤傷远遠边邊圆圓缘緣续續断斷丝絲线線绕繞转轉轻輕响響岁歲词詞调調韵韻诗詩温溫凉涼热熱银銀寻尋归歸处處为為将將当當会會来來后後从從给給装裝满滿载載愿願应應认認错錯伦倫"

var (
	simplifiedToTraditional map[rune]rune
	traditionalToSimplified map[rune]rune
)

func init() {
	runes := []rune(conversionPairs)
	simplifiedToTraditional = make(map[rune]rune, len(runes)/2)
	traditionalToSimplified = make(map[rune]rune, len(runes)/2)
	for i := 0; i+1 < len(runes); i += 2 {
		simplifiedToTraditional[runes[i]] = runes[i+1]
		traditionalToSimplified[runes[i+1]] = runes[i]
	}
}

// ToSimplified converts Traditional Chinese characters to their
// Simplified forms. Unmapped characters, including all of ASCII, pass
// through unchanged.
func ToSimplified(s string) string {
	return convert(s, traditionalToSimplified)
}

// ToTraditional converts Simplified Chinese characters to their
// Traditional forms. Unmapped characters, including all of ASCII, pass
// through unchanged.
func ToTraditional(s string) string {
	return convert(s, simplifiedToTraditional)
}

func convert(s string, table map[rune]rune) string {
	changed := false
	for _, r := range s {
		if _, ok := table[r]; ok {
			changed = true
			break
		}
	}
	if !changed {
		return s
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if mapped, ok := table[r]; ok {
			out = append(out, mapped)
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}
