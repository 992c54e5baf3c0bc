package ollama

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/minios-linux/modtranslate/translate"
)

// ---------------------------------------------------------------------------
// Response recovery
// ---------------------------------------------------------------------------

var markdownCodeBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// linePair matches a well-formed "key": "value" pair.
var linePair = regexp.MustCompile(`"((?:[^"\\]|\\.)+)"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// Recover extracts a key/value map from a raw model response. The response
// may wrap the JSON object in prose or markdown, or emit JSON that needs
// repair. When no object can be parsed, well-formed "key": "value" lines
// are collected instead; recovering nothing is a TranslationFailed error.
func Recover(raw string) (map[string]string, error) {
	content := strings.TrimSpace(raw)
	if m := markdownCodeBlock.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}

	candidate := extractObject(content)
	if candidate == "" {
		if pairs := extractLines(content); len(pairs) > 0 {
			return pairs, nil
		}
		return nil, translate.Errorf(translate.KindTranslationFailed, ProviderName,
			"no JSON object in response: %s", translate.Truncate(content, 200))
	}

	if parsed, ok := parseObject(candidate); ok {
		return parsed, nil
	}
	if parsed, ok := parseObject(repairJSON(candidate)); ok {
		return parsed, nil
	}
	if pairs := extractLines(candidate); len(pairs) > 0 {
		return pairs, nil
	}
	if pairs := extractLines(content); len(pairs) > 0 {
		return pairs, nil
	}
	return nil, translate.Errorf(translate.KindTranslationFailed, ProviderName,
		"unparseable response: %s", translate.Truncate(candidate, 200))
}

// extractObject returns the first balanced {...} substring of s. Braces
// inside double-quoted strings are ignored. When the braces never balance,
// the span from the first '{' to the last '}' is returned.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	if end := strings.LastIndexByte(s, '}'); end > start {
		return s[start : end+1]
	}
	return ""
}

// parseObject decodes a JSON object, stringifying non-string values.
// Null values are dropped. Decoding must reject every malformed input so
// the repair steps get a chance to run.
func parseObject(s string) (map[string]string, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			b, err := json.Marshal(val)
			if err == nil {
				out[k] = string(b)
			}
		}
	}
	return out, true
}

// extractLines collects every well-formed "key": "value" pair in s.
func extractLines(s string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		for _, m := range linePair.FindAllStringSubmatch(line, -1) {
			out[decodeJSONString(m[1])] = decodeJSONString(m[2])
		}
	}
	return out
}

// decodeJSONString unescapes the body of a JSON string literal, returning
// it unchanged if it is not valid JSON.
func decodeJSONString(body string) string {
	var s string
	if err := json.Unmarshal([]byte(`"`+body+`"`), &s); err != nil {
		return body
	}
	return s
}

// ---------------------------------------------------------------------------
// JSON repair heuristics
// ---------------------------------------------------------------------------

// repairJSON applies, in order: comment stripping, single-to-double quote
// conversion, interior quote escaping, invalid escape fixing, and trailing
// comma removal.
func repairJSON(s string) string {
	s = stripComments(s)
	s = convertSingleQuotes(s)
	s = escapeInteriorQuotes(s)
	s = fixInvalidEscapes(s)
	s = stripTrailingCommas(s)
	return s
}

// stripComments removes // line comments and /* */ block comments that
// appear outside of string literals.
func stripComments(s string) string {
	var b strings.Builder
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			b.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				for i < len(s) && s[i] != '\n' {
					i++
				}
				if i < len(s) {
					b.WriteByte('\n')
				}
				continue
			case '*':
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					i = len(s)
				} else {
					i += 2 + end + 1
				}
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// convertSingleQuotes rewrites single-quoted strings as double-quoted ones.
// Double-quoted strings, including apostrophes inside them, are copied
// unchanged.
func convertSingleQuotes(s string) string {
	var b strings.Builder
	inDouble, inSingle, escaped := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inDouble:
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inDouble = false
			}
		case inSingle:
			switch {
			case escaped:
				escaped = false
				if c == '\'' {
					b.WriteByte('\'')
				} else {
					b.WriteByte('\\')
					b.WriteByte(c)
				}
			case c == '\\':
				escaped = true
			case c == '\'':
				inSingle = false
				b.WriteByte('"')
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
		case c == '"':
			inDouble = true
			b.WriteByte(c)
		case c == '\'':
			inSingle = true
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// escapeInteriorQuotes escapes a double quote inside a string unless it is
// followed (after whitespace) by a structural character, which marks it as
// the closing quote. Raw control characters inside strings are escaped too.
func escapeInteriorQuotes(s string) string {
	var b strings.Builder
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			if closesString(s[i+1:]) {
				inString = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func closesString(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	if rest == "" {
		return true
	}
	switch rest[0] {
	case ',', '}', ']', ':':
		return true
	}
	return false
}

// fixInvalidEscapes doubles backslashes that do not start a valid JSON
// escape sequence inside strings (models emit \& or \m unescaped).
func fixInvalidEscapes(s string) string {
	var fixed strings.Builder
	inQuote := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if c == '"' && !escaped {
			inQuote = !inQuote
			fixed.WriteByte(c)
			escaped = false
			continue
		}

		if inQuote && c == '\\' && !escaped {
			if i+1 < len(s) {
				switch s[i+1] {
				case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
					fixed.WriteByte(c)
					escaped = true
					continue
				}
			}
			fixed.WriteString(`\\`)
			continue
		}

		fixed.WriteByte(c)
		escaped = false
	}

	return fixed.String()
}

// stripTrailingCommas drops commas that directly precede '}' or ']'
// outside of strings, together with the whitespace between them.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			rest := strings.TrimLeft(s[i+1:], " \t\r\n")
			if rest != "" && (rest[0] == '}' || rest[0] == ']') {
				i = len(s) - len(rest) - 1
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
