// Package batchfile reads translation batches from disk and writes the
// translated language files back.
//
// Three input shapes are accepted: a batch document validated against the
// embedded JSON schema ({"sourceLang", "targetLang", "entries": {...}}),
// a bare mod language file ({"key": "text", ...}), and a legacy .lang file
// (key=value lines). Entry order is preserved in all of them.
package batchfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/minios-linux/modtranslate/langfile"
	"github.com/minios-linux/modtranslate/translate"
)

//go:embed batch.schema.json
var batchSchemaJSON string

// Defaults fill fields a document leaves out.
type Defaults struct {
	SourceLang string
	TargetLang string
	Methods    []string
	Provider   string
	Fallback   bool
}

type document struct {
	SourceLang string                                 `json:"sourceLang"`
	TargetLang string                                 `json:"targetLang"`
	Methods    []string                               `json:"methods"`
	Provider   string                                 `json:"provider"`
	Fallback   *bool                                  `json:"fallback"`
	Context    string                                 `json:"context"`
	Entries    *orderedmap.OrderedMap[string, string] `json:"entries"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ReadFile decodes the batch at path. Files with the .lang extension are
// read as legacy language files.
func ReadFile(path string, defaults Defaults) (translate.Batch, error) {
	if isLang(path) {
		f, err := langfile.ParseFile(path)
		if err != nil {
			return translate.Batch{}, err
		}
		doc := document{Entries: orderedmap.New[string, string]()}
		for _, k := range f.Keys() {
			v, _ := f.Get(k)
			doc.Entries.Set(k, v)
		}
		return doc.batch(defaults), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return translate.Batch{}, fmt.Errorf("reading %s: %w", path, err)
	}
	b, err := Decode(data, defaults)
	if err != nil {
		return translate.Batch{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Decode parses data as a batch document when it carries an "entries"
// object, or as a bare language file otherwise.
func Decode(data []byte, defaults Defaults) (translate.Batch, error) {
	value, err := decodeStrictJSON(data)
	if err != nil {
		return translate.Batch{}, fmt.Errorf("decode batch JSON: %w", err)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return translate.Batch{}, fmt.Errorf("batch must be a JSON object")
	}

	var doc document
	if _, isDoc := obj["entries"]; isDoc {
		schema, err := loadSchema()
		if err != nil {
			return translate.Batch{}, fmt.Errorf("load schema: %w", err)
		}
		if err := schema.Validate(value); err != nil {
			return translate.Batch{}, fmt.Errorf("schema validation failed: %w", err)
		}
		if err := gojson.Unmarshal(data, &doc); err != nil {
			return translate.Batch{}, fmt.Errorf("unmarshal batch: %w", err)
		}
	} else {
		for k, v := range obj {
			if _, ok := v.(string); !ok {
				return translate.Batch{}, fmt.Errorf("language file value for %q is not a string", k)
			}
		}
		doc.Entries = orderedmap.New[string, string]()
		if err := gojson.Unmarshal(data, doc.Entries); err != nil {
			return translate.Batch{}, fmt.Errorf("unmarshal language file: %w", err)
		}
	}

	return doc.batch(defaults), nil
}

func (d *document) batch(defaults Defaults) translate.Batch {
	b := translate.Batch{
		SourceLang:   firstNonEmpty(d.SourceLang, defaults.SourceLang),
		TargetLang:   firstNonEmpty(d.TargetLang, defaults.TargetLang),
		Methods:      d.Methods,
		ProviderHint: firstNonEmpty(d.Provider, defaults.Provider),
		Fallback:     defaults.Fallback,
		Context:      strings.TrimSpace(d.Context),
		Texts:        make(map[string]string),
	}
	if len(b.Methods) == 0 {
		b.Methods = append([]string(nil), defaults.Methods...)
	}
	if d.Fallback != nil {
		b.Fallback = *d.Fallback
	}
	if d.Entries != nil {
		for pair := d.Entries.Oldest(); pair != nil; pair = pair.Next() {
			b.Keys = append(b.Keys, pair.Key)
			b.Texts[pair.Key] = pair.Value
		}
	}
	return b
}

// Encode renders the translations of out as a language file whose keys
// follow the batch order. Keys without a translation are omitted unless
// keepSource is set, in which case the source text is written instead.
func Encode(b translate.Batch, out *translate.Outcome, keepSource bool) ([]byte, error) {
	om := orderedmap.New[string, string]()
	for _, k := range b.Keys {
		if v, ok := out.Translations[k]; ok {
			om.Set(k, v)
		} else if keepSource {
			om.Set(k, b.Texts[k])
		}
	}
	data, err := gojson.Marshal(om)
	if err != nil {
		return nil, fmt.Errorf("marshal translations: %w", err)
	}
	var buf bytes.Buffer
	if err := gojson.Indent(&buf, data, "", "  "); err != nil {
		return nil, fmt.Errorf("indent translations: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteFile writes Encode's output to path, or a legacy language file when
// path has the .lang extension.
func WriteFile(path string, b translate.Batch, out *translate.Outcome, keepSource bool) error {
	if isLang(path) {
		f := langfile.New()
		for _, k := range b.Keys {
			if v, ok := out.Translations[k]; ok {
				f.Add(k, v)
			} else if keepSource {
				f.Add(k, b.Texts[k])
			}
		}
		return f.WriteFile(path)
	}

	data, err := Encode(b, out, keepSource)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("batch.schema.json", strings.NewReader(batchSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("batch.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

// decodeStrictJSON decodes with json.Number, which the schema validator expects.
func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("batch is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("batch contains trailing content")
	}
	return value, nil
}

func isLang(path string) bool {
	return strings.EqualFold(filepath.Ext(path), langfile.Ext)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
