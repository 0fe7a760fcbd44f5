// Package normalize turns raw source titles into canonical movie titles and comparison keys.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Result is the outcome of normalizing one raw title
type Result struct {
	Raw          string // Untouched input
	Canonical    string // Title used as display name and key source
	Annotation   string // Removed dub/subtitle annotations, space separated
	SpecialEvent string // First special-event marker found, if any
}

var (
	// "(OmU)", "(engl. OmU)", "( OV )", "(OF)", "(OmeU)"
	parenAnnotation = regexp.MustCompile(`\(\s*(?:[a-z]+\.\s*)?(?i:om[ed]?u|ov|of)\s*\)`)
	// "engl. OmU" anywhere, or "OmU" as the last word; the language prefix is lower case only
	bareSubtitle = regexp.MustCompile(`\b[a-z]+\.\s*(?i:om[ed]?u)\b|\s(?i:om[ed]?u)\s*$`)
	// "Dune OV"
	trailingOV = regexp.MustCompile(`(?i)\s+ov\s*$`)

	whitespace = regexp.MustCompile(`\s+`)
)

const separators = " \t-–—:|,;/"

// Title normalizes a raw title using the special-event markers of its source.
// A marker found after the start truncates the title there; a marker at the very
// start is stripped. Dub annotations are removed and reported in the result.
func Title(raw string, markers []string) Result {
	result := Result{Raw: raw}
	title := strings.TrimSpace(raw)

	for _, marker := range markers {
		if strings.TrimSpace(marker) == "" {
			continue
		}
		loc := markerPattern(marker).FindStringIndex(title)
		if loc == nil {
			continue
		}
		if result.SpecialEvent == "" {
			result.SpecialEvent = strings.Trim(title[loc[0]:loc[1]], " ()[]")
		}
		if loc[0] > 0 {
			title = title[:loc[0]]
		} else {
			title = strings.TrimLeft(title[loc[1]:], separators)
		}
	}

	var annotations []string
	title = parenAnnotation.ReplaceAllStringFunc(title, func(m string) string {
		annotations = append(annotations, m)
		return " "
	})
	title = bareSubtitle.ReplaceAllStringFunc(title, func(m string) string {
		annotations = append(annotations, strings.TrimSpace(m))
		return " "
	})
	if m := trailingOV.FindString(title); m != "" {
		annotations = append(annotations, strings.TrimSpace(m))
		title = title[:len(title)-len(m)]
	}
	result.Annotation = strings.Join(annotations, " ")

	title = collapse(title)
	title = strings.Trim(title, separators)
	if title == "" {
		// Nothing but markers or annotations; keep something resolvable
		title = collapse(raw)
	}
	result.Canonical = title
	return result
}

// Key folds case and diacritics and collapses whitespace.
// Two titles denote the same movie exactly when their keys are equal.
func Key(s string) string {
	folded := cases.Fold().String(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, folded)
	if err != nil {
		stripped = folded
	}
	return collapse(stripped)
}

func markerPattern(marker string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(strings.TrimSpace(marker)))
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
