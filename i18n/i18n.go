// Package i18n localizes modtranslate's CLI messages through gotext.
//
// Catalogs live under locales/{lang}/LC_MESSAGES/modtranslate.po and are
// embedded in the binary. The UI language comes from the ui_language
// setting when set, otherwise from the gettext environment variables.
package i18n

import (
	"embed"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/leonelquinteros/gotext"
)

//go:embed all:locales
var locales embed.FS

const (
	domain     = "modtranslate"
	localeRoot = "locales"
)

var (
	po     *gotext.Locale
	active string
)

// Init selects the catalog for lang, a locale tag such as "ru", "ru_RU",
// "ru-RU.UTF-8" or a colon-separated LANGUAGE list. An empty lang is
// resolved from LANGUAGE, LC_ALL, LC_MESSAGES and LANG.
//
// It returns the catalog language in use and whether one was found.
// Without a catalog every message passes through untranslated.
func Init(lang string) (string, bool) {
	candidates := Candidates(lang)
	if lang == "" {
		candidates = detectCandidates()
	}

	po, active = nil, ""
	for _, c := range candidates {
		if !hasCatalog(c) {
			continue
		}
		l := gotext.NewLocaleFSWithPath(c, locales, localeRoot)
		l.AddDomain(domain)
		l.SetDomain(domain)
		po, active = l, c
		return c, true
	}
	return "", false
}

// Active returns the catalog language selected by the last Init, or ""
// when messages are untranslated.
func Active() string { return active }

// Available lists the embedded catalog languages.
func Available() []string {
	entries, err := fs.ReadDir(locales, localeRoot)
	if err != nil {
		return nil
	}
	var langs []string
	for _, e := range entries {
		if e.IsDir() && hasCatalog(e.Name()) {
			langs = append(langs, e.Name())
		}
	}
	sort.Strings(langs)
	return langs
}

// T translates msgid, or returns it unchanged.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N translates a message with plural forms using the catalog's formula.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// Candidates expands a locale tag or colon list into catalog names to try
// in order: "pt-BR.UTF-8:ru" gives pt_BR, pt, ru. "C" and "POSIX" select
// no translation.
func Candidates(tags string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, tag := range strings.Split(tags, ":") {
		tag = normalize(tag)
		if tag == "" {
			continue
		}
		add(tag)
		if base, _, ok := strings.Cut(tag, "_"); ok {
			add(base)
		}
	}
	return out
}

// normalize strips the encoding and modifier ("ru_RU.UTF-8@euro") and
// spells the region with an underscore.
func normalize(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, ".@"); i >= 0 {
		tag = tag[:i]
	}
	if tag == "C" || tag == "POSIX" {
		return ""
	}
	lang, region, ok := strings.Cut(strings.ReplaceAll(tag, "-", "_"), "_")
	if !ok {
		return strings.ToLower(lang)
	}
	return strings.ToLower(lang) + "_" + strings.ToUpper(region)
}

// detectCandidates follows gettext precedence: LANGUAGE, then the first
// set of LC_ALL, LC_MESSAGES and LANG.
func detectCandidates() []string {
	out := Candidates(os.Getenv("LANGUAGE"))
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if val := os.Getenv(env); val != "" {
			out = append(out, Candidates(val)...)
			break
		}
	}
	return out
}

func hasCatalog(lang string) bool {
	_, err := fs.Stat(locales, localeRoot+"/"+lang+"/LC_MESSAGES/"+domain+".po")
	return err == nil
}
