// Package classify maps free-text showtime tokens to languages and dub variants.
//
// Both classifications walk an ordered table and return the first entry with a
// case-insensitive substring hit. The order is part of the contract: short country
// codes such as "DK" appear under more than one language, and the earlier entry wins.
package classify

import (
	"strings"

	"github.com/amaumene/gokino/internal/models"
)

type languageEntry struct {
	value  models.Language
	tokens []string
}

type dubEntry struct {
	value  models.DubVariant
	tokens []string
}

// languageTable is checked top to bottom
var languageTable = []languageEntry{
	{models.LanguageGerman, []string{"Deutsch", "de", "deu", "dt.", "DK"}},
	{models.LanguageDanish, []string{"Dänisch", "dän", "DK"}},
	{models.LanguageEnglish, []string{"Englisch", "English", "eng", "engl", "EN.", "GB", "UK", "US", "USA"}},
	{models.LanguageFrench, []string{"Französisch", "franz", "frnz", "frz", "FR"}},
	{models.LanguageSpanish, []string{"Spanisch", "span", "SP", "ES"}},
	{models.LanguageItalian, []string{"Italienisch", "ital", "IT"}},
	{models.LanguageTurkish, []string{"Türkisch", "türk", "trk", "TR"}},
	{models.LanguageRussian, []string{"Russisch", "russ"}},
	{models.LanguageJapanese, []string{"Japanisch", "jap", "JP", "JA"}},
	{models.LanguageKorean, []string{"Koreanisch", "kor", "KO"}},
	{models.LanguageHindi, []string{"Hindi", "hind", "hin"}},
	{models.LanguagePolish, []string{"Polnisch", "pol", "PL"}},
	{models.LanguageOther, []string{"Andere", "Verschiedene", "versch.", "div.", "Malayalam", "Filipino", "Georgisch", "georg."}},
	{models.LanguageUnknown, []string{"Unbekannt"}},
}

// dubTable is checked top to bottom. Regular has no usable token and is only the default.
var dubTable = []dubEntry{
	{models.DubRegular, []string{""}},
	{models.DubOriginalVersion, []string{"OV", "OF", "Original Version", "Originalversion", "Originalfassung", "Original Fassung"}},
	{models.DubSubtitled, []string{"OmU", "OmeU", "OmdU", "Untertitel"}},
}

var dubFiller = strings.NewReplacer(".", "", "(", "", ")", "")

// Language classifies the spoken language mentioned in text.
// Returns LanguageUnknown when nothing matches.
func Language(text string) models.Language {
	needle := strings.ToLower(text)
	for _, entry := range languageTable {
		if containsAny(needle, entry.tokens) {
			return entry.value
		}
	}
	return models.LanguageUnknown
}

// DubVariant classifies the audio/subtitle treatment mentioned in text.
// Periods and parentheses are dropped first so "(O.m.U.)" reads as "OmU".
// Returns DubRegular when nothing matches.
func DubVariant(text string) models.DubVariant {
	needle := strings.ToLower(strings.TrimSpace(dubFiller.Replace(text)))
	for _, entry := range dubTable {
		if containsAny(needle, entry.tokens) {
			return entry.value
		}
	}
	return models.DubRegular
}

// containsAny reports whether the lowercased needle contains any non-blank token
func containsAny(needle string, tokens []string) bool {
	for _, token := range tokens {
		if strings.TrimSpace(token) == "" {
			continue
		}
		if strings.Contains(needle, strings.ToLower(token)) {
			return true
		}
	}
	return false
}

// Languages returns the languages in priority order
func Languages() []models.Language {
	out := make([]models.Language, 0, len(languageTable))
	for _, entry := range languageTable {
		out = append(out, entry.value)
	}
	return out
}

// DubVariants returns the dub variants in priority order
func DubVariants() []models.DubVariant {
	out := make([]models.DubVariant, 0, len(dubTable))
	for _, entry := range dubTable {
		out = append(out, entry.value)
	}
	return out
}

// LanguageName returns the display name of a language (its first token)
func LanguageName(language models.Language) string {
	for _, entry := range languageTable {
		if entry.value == language {
			return entry.tokens[0]
		}
	}
	return "Unbekannt"
}

// DubVariantName returns the short display name of a dub variant.
// Regular has no label and yields an empty string.
func DubVariantName(variant models.DubVariant) string {
	for _, entry := range dubTable {
		if entry.value == variant {
			return entry.tokens[0]
		}
	}
	return ""
}
