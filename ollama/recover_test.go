package ollama

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/modtranslate/translate"
)

func TestRecover(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			name: "plain object",
			raw:  `{"a": "x", "b": "y"}`,
			want: map[string]string{"a": "x", "b": "y"},
		},
		{
			name: "prose around object",
			raw:  "Sure! Here you go: {\"a\":\"Привет\"}",
			want: map[string]string{"a": "Привет"},
		},
		{
			name: "single quotes and trailing comma",
			raw:  `{'a': "x",}`,
			want: map[string]string{"a": "x"},
		},
		{
			name: "markdown fence",
			raw:  "Here:\n```json\n{\"a\": \"x\"}\n```\nDone.",
			want: map[string]string{"a": "x"},
		},
		{
			name: "comments outside strings",
			raw:  "{\n  // greeting\n  \"a\": \"x\", /* note */\n  \"b\": \"http://y\"\n}",
			want: map[string]string{"a": "x", "b": "http://y"},
		},
		{
			name: "interior quotes",
			raw:  `{"a": "He said "hi" to me"}`,
			want: map[string]string{"a": `He said "hi" to me`},
		},
		{
			name: "apostrophe inside double quotes",
			raw:  `{'a': "Don't stop",}`,
			want: map[string]string{"a": "Don't stop"},
		},
		{
			name: "invalid escape",
			raw:  `{"a": "Press \& hold"}`,
			want: map[string]string{"a": `Press \& hold`},
		},
		{
			name: "braces inside strings",
			raw:  `Result: {"a": "use {0} and }"} trailing {junk}`,
			want: map[string]string{"a": "use {0} and }"},
		},
		{
			name: "non-string values",
			raw:  `{"a": 5, "b": true, "c": null}`,
			want: map[string]string{"a": "5", "b": "true"},
		},
		{
			name: "no braces falls back to lines",
			raw:  "Here you go\n\"a\": \"Привет\"\n\"b\": broken\nc: \"x\"",
			want: map[string]string{"a": "Привет"},
		},
		{
			name: "unterminated object falls back to lines",
			raw:  "{\n\"a\": \"x\",\n\"b\": \"y\"",
			want: map[string]string{"a": "x", "b": "y"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Recover(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRecoverNothing(t *testing.T) {
	for _, raw := range []string{"", "I cannot translate this.", "{ totally: broken ]"} {
		_, err := Recover(raw)
		require.Error(t, err, raw)
		assert.Equal(t, translate.KindTranslationFailed, translate.KindOf(err), raw)
	}
}

func TestExtractObject(t *testing.T) {
	assert.Equal(t, `{"a": {"b": 1}}`, extractObject(`x {"a": {"b": 1}} y {"c": 2}`))
	assert.Equal(t, "", extractObject("no object"))
	assert.Equal(t, `{"a": "x" }`, extractObject(`{"a": "x" }`))
}

func TestRepairSteps(t *testing.T) {
	assert.Equal(t, `{"a": "x"}`, stripTrailingCommas(`{"a": "x",}`))
	assert.Equal(t, `["a"]`, stripTrailingCommas(`["a", ]`))
	assert.Equal(t, "{\"a\": [1, 2]}", stripTrailingCommas("{\"a\": [1, 2,\n\t],\n}"))
	assert.Equal(t, `{"a": "x,}"}`, stripTrailingCommas(`{"a": "x,}"}`))
	assert.Equal(t, `{"a": "it's"}`, convertSingleQuotes(`{'a': 'it\'s'}`))
	assert.Equal(t, `{"a": "say \"x\""}`, convertSingleQuotes(`{'a': 'say "x"'}`))
	assert.Equal(t, `{"a": "x\\y"}`, fixInvalidEscapes(`{"a": "x\y"}`))
	assert.Equal(t, `{"a": "line\nnext"}`, escapeInteriorQuotes("{\"a\": \"line\nnext\"}"))
	assert.True(t, strings.Contains(stripComments("{\"a\": 1 // c\n}"), "\n}"))
}

func TestPostProcess(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		target string
		want   string
	}{
		{name: "trim and unescape", in: `  Hello \"world\"\nline  `, target: "ru", want: "Hello \"world\"\nline"},
		{name: "tab", in: `a\tb`, target: "de", want: "a\tb"},
		{name: "cjk spaces removed", in: "红宝石 剑", target: "zh-CN", want: "红宝石剑"},
		{name: "cjk keeps latin spacing", in: "储存 %s FE", target: "zh-CN", want: "储存 %s FE"},
		{name: "japanese", in: "ルビー の 剣", target: "ja", want: "ルビーの剣"},
		{name: "non cjk untouched", in: "Привет мир", target: "ru", want: "Привет мир"},
		{name: "korean keeps spaces", in: "루비 검", target: "ko", want: "루비 검"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, postProcess(tc.in, tc.target))
		})
	}

	long := strings.Repeat("я", MaxValueRunes+500)
	got := postProcess(long, "ru")
	assert.Equal(t, strings.Repeat("я", MaxValueRunes)+"...", got)
}
