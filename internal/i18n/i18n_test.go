package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Exam Paper Generator" {
		t.Errorf("T(AppTitle) = %q, want 'Exam Paper Generator'", got)
	}

	got = T(ctx, "GenerateButton")
	if got != "Generate Exam Paper" {
		t.Errorf("T(GenerateButton) = %q, want 'Generate Exam Paper'", got)
	}
}

func TestTranslateHindi(t *testing.T) {
	ctx := initLang(t, "hi")

	got := T(ctx, "AppTitle")
	if got != "परीक्षा पत्र जनरेटर" {
		t.Errorf("T(AppTitle) = %q, want Hindi title", got)
	}

	got = T(ctx, "PrintButton")
	if got != "प्रिंट करें" {
		t.Errorf("T(PrintButton) = %q, want Hindi print label", got)
	}
}

func TestLocalizeExplicitLanguage(t *testing.T) {
	initLang(t, "en")

	if got := Localize("hi", "GenerateButton"); got != "परीक्षा पत्र बनाएं" {
		t.Errorf("Localize(hi, GenerateButton) = %q", got)
	}
	if got := Localize("en", "GenerateButton"); got != "Generate Exam Paper" {
		t.Errorf("Localize(en, GenerateButton) = %q", got)
	}
}

func TestErrorMessageKeys(t *testing.T) {
	initLang(t, "en")

	// API error strings must exist in every shipped language.
	for _, key := range []string{"Unauthorized", "GenerationInProgress", "HistoryLoadError", "LoginError"} {
		for _, lang := range []string{"en", "hi"} {
			if got := Localize(lang, key); got == key {
				t.Errorf("Localize(%s, %s) fell back to the key", lang, key)
			}
		}
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}
