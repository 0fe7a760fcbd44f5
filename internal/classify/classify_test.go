package classify

import (
	"testing"

	"github.com/amaumene/gokino/internal/models"
)

func TestLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.Language
	}{
		{"empty", "", models.LanguageUnknown},
		{"no token", "xyz", models.LanguageUnknown},
		{"german", "Deutsch", models.LanguageGerman},
		{"english", "Englisch", models.LanguageEnglish},
		{"english abbreviation", "engl. OmU", models.LanguageEnglish},
		{"french", "Französisch", models.LanguageFrench},
		{"spanish", "Spanisch", models.LanguageSpanish},
		{"japanese", "Japanisch", models.LanguageJapanese},
		{"other", "Malayalam", models.LanguageOther},
		{"case insensitive", "DEUTSCH", models.LanguageGerman},
		{"DK is claimed by german first", "DK", models.LanguageGerman},
		{"danish without shared code", "Dänisch", models.LanguageDanish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Language(tt.text); got != tt.want {
				t.Errorf("Language(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestDubVariant(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.DubVariant
	}{
		{"empty", "", models.DubRegular},
		{"whitespace", "   ", models.DubRegular},
		{"no token", "3D", models.DubRegular},
		{"ov", "OV", models.DubOriginalVersion},
		{"parenthesised ov", "( OV )", models.DubOriginalVersion},
		{"originalfassung", "Originalfassung", models.DubOriginalVersion},
		{"omu", "OmU", models.DubSubtitled},
		{"dotted omu", "(O.m.U.)", models.DubSubtitled},
		{"omeu", "OmeU", models.DubSubtitled},
		{"untertitel", "mit Untertitel", models.DubSubtitled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DubVariant(tt.text); got != tt.want {
				t.Errorf("DubVariant(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestPriorityOrder(t *testing.T) {
	languages := Languages()
	if len(languages) != 14 {
		t.Fatalf("expected 14 languages, got %d", len(languages))
	}
	if languages[0] != models.LanguageGerman || languages[1] != models.LanguageDanish {
		t.Errorf("german must precede danish, got %v", languages[:2])
	}
	if languages[len(languages)-1] != models.LanguageUnknown {
		t.Errorf("unknown must be last, got %s", languages[len(languages)-1])
	}

	variants := DubVariants()
	want := []models.DubVariant{models.DubRegular, models.DubOriginalVersion, models.DubSubtitled}
	if len(variants) != len(want) {
		t.Fatalf("expected %d dub variants, got %d", len(want), len(variants))
	}
	for i := range want {
		if variants[i] != want[i] {
			t.Errorf("variant %d = %s, want %s", i, variants[i], want[i])
		}
	}
}

func TestDisplayNames(t *testing.T) {
	if got := LanguageName(models.LanguageFrench); got != "Französisch" {
		t.Errorf("LanguageName(french) = %q", got)
	}
	if got := LanguageName(models.Language("klingon")); got != "Unbekannt" {
		t.Errorf("LanguageName(unknown value) = %q", got)
	}
	if got := DubVariantName(models.DubSubtitled); got != "OmU" {
		t.Errorf("DubVariantName(subtitled) = %q", got)
	}
	if got := DubVariantName(models.DubRegular); got != "" {
		t.Errorf("DubVariantName(regular) = %q, want empty", got)
	}
}
