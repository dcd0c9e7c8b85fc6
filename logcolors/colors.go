package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"

	// Bright variants for more color variety
	BrightGreen   = "\033[92m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"

	// Red variants (for warnings only)
	Red       = "\033[31m"
	BrightRed = "\033[91m"
)

// Store-related log prefixes
const (
	LogStoreInit    = Blue + "[Store:Init]" + Reset
	LogStore        = Blue + "[Store]" + Reset
	LogStoreBackup  = Blue + "[Store:Backup]" + Reset
	LogStoreClear   = Blue + "[Store:Clear]" + Reset
	LogStoreBackups = Blue + "[Store:Backups]" + Reset
	LogStoreRestore = Blue + "[Store:Restore]" + Reset
	LogSongDoc      = Green + "[SongDoc]" + Reset
)

// Rate limiting and admin log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogAdmin     = Purple + "[Admin]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

// langColors are the colors used for target language tags (rotating based on hash)
var langColors = []string{
	Green, Blue, Purple, Cyan, Red,
	BrightGreen, BrightBlue, BrightMagenta, BrightCyan, BrightRed,
}

// Lang returns a colored language tag for log messages
// Same language tag always gets the same color
func Lang(tag string) string {
	// Simple hash: sum of bytes mod number of colors
	hash := 0
	for _, c := range tag {
		hash += int(c)
	}
	color := langColors[hash%len(langColors)]
	return color + tag + Reset
}

// Server/Init log prefixes
const (
	LogServer = Green + "[Server]" + Reset
	LogConfig = Cyan + "[Config]" + Reset
	LogStats  = Blue + "[Stats]" + Reset
)

// Catalog service log prefixes
const (
	LogRequest        = Purple + "[Request]" + Reset
	LogSearch         = Blue + "[Search]" + Reset
	LogHTTP           = Cyan + "[HTTP]" + Reset
	LogMatch          = Green + "[Match]" + Reset
	LogSuccess        = Green + "[Success]" + Reset
	LogLyrics         = Blue + "[Lyrics]" + Reset
	LogBestMatch      = Green + "[Best Match]" + Reset
	LogTrackScore     = Cyan + "[Track Score]" + Reset
	LogCircuitBreaker = Purple + "[CircuitBreaker]" + Reset
	LogWarning        = Red + "[Warning]" + Reset
)

// Annotation pipeline log prefixes
const (
	LogAnnotate = BrightMagenta + "[Annotate]" + Reset
	LogCodec    = Cyan + "[Codec]" + Reset
	LogParser   = Cyan + "[Parser]" + Reset
	LogZhConv   = BrightCyan + "[ZhConv]" + Reset
)
