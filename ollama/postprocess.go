package ollama

import (
	"strings"
	"unicode"

	"github.com/minios-linux/modtranslate/langmeta"
	"github.com/minios-linux/modtranslate/translate"
)

// MaxValueRunes caps the length of one translated value.
const MaxValueRunes = 1000

var literalEscapes = strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t")

// postProcess normalizes one accepted value for the target language.
func postProcess(value, targetLang string) string {
	value = strings.TrimSpace(value)
	value = literalEscapes.Replace(value)
	if langmeta.IsCJK(targetLang) {
		value = stripCJKSpaces(value)
	}
	return translate.Truncate(value, MaxValueRunes)
}

// stripCJKSpaces removes whitespace runs that sit between two CJK
// characters. Spacing next to Latin text, digits or format codes is kept.
func stripCJKSpaces(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) {
			out = append(out, runes[i])
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if len(out) > 0 && j < len(runes) && isCJK(out[len(out)-1]) && isCJK(runes[j]) {
			i = j - 1
			continue
		}
		out = append(out, runes[i:j]...)
		i = j - 1
	}
	return string(out)
}

func isCJK(r rune) bool {
	switch {
	case unicode.Is(unicode.Han, r),
		unicode.Is(unicode.Hiragana, r),
		unicode.Is(unicode.Katakana, r):
		return true
	case r >= 0x3000 && r <= 0x30FF: // CJK punctuation, kana
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // full-width forms
		return true
	}
	return false
}
