package ollama

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/minios-linux/modtranslate/langmeta"
	"github.com/minios-linux/modtranslate/translate"
)

const (
	maxExamples     = 2
	maxExampleRunes = 60
)

// Example is one illustrative key, source text and translation shown to
// the model before the real input.
type Example struct {
	Key         string
	Source      string
	Translation string
}

// defaultExamples holds built-in examples per target language. Targets
// not listed get a prompt without examples unless Options.Examples is set.
var defaultExamples = map[string][]Example{
	"ru": {
		{Key: "item.examplemod.ruby_sword", Source: "Ruby Sword", Translation: "Рубиновый меч"},
		{Key: "tooltip.examplemod.energy", Source: "Stores %s FE", Translation: "Хранит %s FE"},
	},
	"uk": {
		{Key: "item.examplemod.ruby_sword", Source: "Ruby Sword", Translation: "Рубіновий меч"},
		{Key: "tooltip.examplemod.energy", Source: "Stores %s FE", Translation: "Зберігає %s FE"},
	},
	"de": {
		{Key: "item.examplemod.ruby_sword", Source: "Ruby Sword", Translation: "Rubinschwert"},
		{Key: "tooltip.examplemod.energy", Source: "Stores %s FE", Translation: "Speichert %s FE"},
	},
	"fr": {
		{Key: "item.examplemod.ruby_sword", Source: "Ruby Sword", Translation: "Épée en rubis"},
		{Key: "tooltip.examplemod.energy", Source: "Stores %s FE", Translation: "Stocke %s FE"},
	},
	"es": {
		{Key: "item.examplemod.ruby_sword", Source: "Ruby Sword", Translation: "Espada de rubí"},
		{Key: "tooltip.examplemod.energy", Source: "Stores %s FE", Translation: "Almacena %s FE"},
	},
	"zh-CN": {
		{Key: "item.examplemod.ruby_sword", Source: "Ruby Sword", Translation: "红宝石剑"},
		{Key: "tooltip.examplemod.energy", Source: "Stores %s FE", Translation: "储存 %s FE"},
	},
	"ja": {
		{Key: "item.examplemod.ruby_sword", Source: "Ruby Sword", Translation: "ルビーの剣"},
		{Key: "tooltip.examplemod.energy", Source: "Stores %s FE", Translation: "%s FEを蓄える"},
	},
}

// buildPrompt renders the generate prompt: instructions, at most two
// trimmed examples, and the literal key/value pairs as a JSON object.
func buildPrompt(batch translate.Batch, examples []Example) string {
	source := langmeta.Name(batch.SourceLang)
	target := langmeta.Name(batch.TargetLang)

	var sb strings.Builder
	sb.WriteString("You are a professional translator of Minecraft mod localization files.\n")
	sb.WriteString("Translate every value of the JSON object below from " + source + " to " + target + ".\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Return ONLY a JSON object with exactly the same keys. Never translate or rename keys.\n")
	sb.WriteString("- Keep formatting codes (§a, %s, %d, %1$s, {0}) and escape sequences (\\n) unchanged.\n")
	sb.WriteString("- Do not add explanations, comments or markdown.\n")
	if hints := strings.TrimSpace(batch.Context); hints != "" {
		sb.WriteString("Mod context: " + hints + "\n")
	}

	if len(examples) > maxExamples {
		examples = examples[:maxExamples]
	}
	if len(examples) > 0 {
		sb.WriteString("\nExamples:\n")
		for _, ex := range examples {
			in := map[string]string{ex.Key: translate.Truncate(ex.Source, maxExampleRunes)}
			out := map[string]string{ex.Key: translate.Truncate(ex.Translation, maxExampleRunes)}
			inJSON, _ := json.Marshal(in)
			outJSON, _ := json.Marshal(out)
			sb.WriteString(string(inJSON) + " -> " + string(outJSON) + "\n")
		}
	}

	sb.WriteString("\nInput:\n")
	sb.WriteString(encodePairs(batch))
	sb.WriteString("\nOutput:\n")
	return sb.String()
}

// encodePairs writes the batch as a JSON object in batch key order.
func encodePairs(batch translate.Batch) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for i, k := range batch.Keys {
		kJSON, _ := json.Marshal(k)
		vJSON, _ := json.Marshal(batch.Texts[k])
		sb.WriteString("  ")
		sb.Write(kJSON)
		sb.WriteString(": ")
		sb.Write(vJSON)
		if i < len(batch.Keys)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

// examplesFor picks the configured examples, or the built-in ones for target.
func examplesFor(configured []Example, target string) []Example {
	if len(configured) > 0 {
		return configured
	}
	return defaultExamples[target]
}
