// Package langmeta provides the supported-language registry used to
// validate batches and to render language names into LLM prompts.
package langmeta

import (
	"sort"
	"strings"
)

// Meta describes one supported language.
type Meta struct {
	// Name is the English display name used in prompts.
	Name string
	// CJK marks scripts written without inter-word spaces.
	CJK bool
}

// Registry lists every language code a batch may use. Codes follow the
// Google Translate convention of the mod translator tooling (iw, jw, zh-CN).
var Registry = map[string]Meta{
	"af":    {Name: "Afrikaans"},
	"sq":    {Name: "Albanian"},
	"am":    {Name: "Amharic"},
	"ar":    {Name: "Arabic"},
	"hy":    {Name: "Armenian"},
	"az":    {Name: "Azerbaijani"},
	"eu":    {Name: "Basque"},
	"be":    {Name: "Belarusian"},
	"bn":    {Name: "Bengali"},
	"bs":    {Name: "Bosnian"},
	"bg":    {Name: "Bulgarian"},
	"ca":    {Name: "Catalan"},
	"ceb":   {Name: "Cebuano"},
	"ny":    {Name: "Chichewa"},
	"zh-CN": {Name: "Chinese (Simplified)", CJK: true},
	"zh-TW": {Name: "Chinese (Traditional)", CJK: true},
	"co":    {Name: "Corsican"},
	"hr":    {Name: "Croatian"},
	"cs":    {Name: "Czech"},
	"da":    {Name: "Danish"},
	"nl":    {Name: "Dutch"},
	"en":    {Name: "English"},
	"eo":    {Name: "Esperanto"},
	"et":    {Name: "Estonian"},
	"tl":    {Name: "Filipino"},
	"fi":    {Name: "Finnish"},
	"fr":    {Name: "French"},
	"fy":    {Name: "Frisian"},
	"gl":    {Name: "Galician"},
	"ka":    {Name: "Georgian"},
	"de":    {Name: "German"},
	"el":    {Name: "Greek"},
	"gu":    {Name: "Gujarati"},
	"ht":    {Name: "Haitian Creole"},
	"ha":    {Name: "Hausa"},
	"haw":   {Name: "Hawaiian"},
	"iw":    {Name: "Hebrew"},
	"hi":    {Name: "Hindi"},
	"hmn":   {Name: "Hmong"},
	"hu":    {Name: "Hungarian"},
	"is":    {Name: "Icelandic"},
	"ig":    {Name: "Igbo"},
	"id":    {Name: "Indonesian"},
	"ga":    {Name: "Irish"},
	"it":    {Name: "Italian"},
	"ja":    {Name: "Japanese", CJK: true},
	"jw":    {Name: "Javanese"},
	"kn":    {Name: "Kannada"},
	"kk":    {Name: "Kazakh"},
	"km":    {Name: "Khmer"},
	"ko":    {Name: "Korean"},
	"ku":    {Name: "Kurdish"},
	"ky":    {Name: "Kyrgyz"},
	"lo":    {Name: "Lao"},
	"la":    {Name: "Latin"},
	"lv":    {Name: "Latvian"},
	"lt":    {Name: "Lithuanian"},
	"lb":    {Name: "Luxembourgish"},
	"mk":    {Name: "Macedonian"},
	"mg":    {Name: "Malagasy"},
	"ms":    {Name: "Malay"},
	"ml":    {Name: "Malayalam"},
	"mt":    {Name: "Maltese"},
	"mi":    {Name: "Maori"},
	"mr":    {Name: "Marathi"},
	"mn":    {Name: "Mongolian"},
	"my":    {Name: "Myanmar (Burmese)"},
	"ne":    {Name: "Nepali"},
	"no":    {Name: "Norwegian"},
	"ps":    {Name: "Pashto"},
	"fa":    {Name: "Persian"},
	"pl":    {Name: "Polish"},
	"pt":    {Name: "Portuguese"},
	"pa":    {Name: "Punjabi"},
	"ro":    {Name: "Romanian"},
	"ru":    {Name: "Russian"},
	"sm":    {Name: "Samoan"},
	"gd":    {Name: "Scots Gaelic"},
	"sr":    {Name: "Serbian"},
	"st":    {Name: "Sesotho"},
	"sn":    {Name: "Shona"},
	"sd":    {Name: "Sindhi"},
	"si":    {Name: "Sinhala"},
	"sk":    {Name: "Slovak"},
	"sl":    {Name: "Slovenian"},
	"so":    {Name: "Somali"},
	"es":    {Name: "Spanish"},
	"su":    {Name: "Sundanese"},
	"sw":    {Name: "Swahili"},
	"sv":    {Name: "Swedish"},
	"tg":    {Name: "Tajik"},
	"ta":    {Name: "Tamil"},
	"te":    {Name: "Telugu"},
	"th":    {Name: "Thai"},
	"tr":    {Name: "Turkish"},
	"uk":    {Name: "Ukrainian"},
	"ur":    {Name: "Urdu"},
	"uz":    {Name: "Uzbek"},
	"vi":    {Name: "Vietnamese"},
	"cy":    {Name: "Welsh"},
	"xh":    {Name: "Xhosa"},
	"yi":    {Name: "Yiddish"},
	"yo":    {Name: "Yoruba"},
	"zu":    {Name: "Zulu"},
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Lookup returns the metadata for a supported code. Codes are matched
// after normalization (zh_cn, zh-CN); region variants are not folded onto
// their base language, since the translation backends key on exact codes.
func Lookup(lang string) (Meta, bool) {
	if m, ok := Registry[lang]; ok {
		return m, true
	}
	m, ok := Registry[canonicalize(lang)]
	return m, ok
}

// IsSupported reports whether lang may appear in a batch.
func IsSupported(lang string) bool {
	_, ok := Lookup(lang)
	return ok
}

// Name returns the English display name of lang, or lang itself when unknown.
func Name(lang string) string {
	if m, ok := Lookup(lang); ok {
		return m.Name
	}
	return lang
}

// IsCJK reports whether lang is written without spaces between words.
func IsCJK(lang string) bool {
	m, ok := Lookup(lang)
	return ok && m.CJK
}

// Codes returns every supported code, sorted.
func Codes() []string {
	codes := make([]string, 0, len(Registry))
	for code := range Registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
