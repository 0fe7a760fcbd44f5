package models

// Language represents the spoken language of a showtime
type Language string

const (
	LanguageUnknown  Language = "unknown"
	LanguageGerman   Language = "german"
	LanguageDanish   Language = "danish"
	LanguageEnglish  Language = "english"
	LanguageFrench   Language = "french"
	LanguageSpanish  Language = "spanish"
	LanguageItalian  Language = "italian"
	LanguageTurkish  Language = "turkish"
	LanguageRussian  Language = "russian"
	LanguageJapanese Language = "japanese"
	LanguageKorean   Language = "korean"
	LanguageHindi    Language = "hindi"
	LanguagePolish   Language = "polish"
	LanguageOther    Language = "other"
)

// DubVariant represents the audio/subtitle treatment of a showtime
type DubVariant string

const (
	DubRegular         DubVariant = "regular"          // Dubbed or native language, no subtitles
	DubOriginalVersion DubVariant = "original_version" // Original language, no subtitles
	DubSubtitled       DubVariant = "subtitled"        // Original language with subtitles
)

// ScrapeRunStatus represents the outcome of one source adapter run
type ScrapeRunStatus string

const (
	ScrapeRunRunning   ScrapeRunStatus = "running"
	ScrapeRunCommitted ScrapeRunStatus = "committed"
	ScrapeRunFailed    ScrapeRunStatus = "failed"
	ScrapeRunAbandoned ScrapeRunStatus = "abandoned" // Overran its timeout; showtimes discarded
)
