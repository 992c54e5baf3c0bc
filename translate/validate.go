package translate

import (
	"github.com/minios-linux/modtranslate/langmeta"
)

// BatchValidator checks a batch before it reaches any provider.
type BatchValidator interface {
	Validate(batch Batch) error
}

// Validator is the default BatchValidator: languages must be supported and
// distinct, keys unique and non-empty, every key must carry a text entry,
// and every requested method must be known.
type Validator struct{}

// Validate implements BatchValidator.
func (Validator) Validate(b Batch) error {
	if !langmeta.IsSupported(b.SourceLang) {
		return Errorf(KindValidation, "", "unsupported source language %q", b.SourceLang)
	}
	if !langmeta.IsSupported(b.TargetLang) {
		return Errorf(KindValidation, "", "unsupported target language %q", b.TargetLang)
	}
	if b.SourceLang == b.TargetLang {
		return Errorf(KindValidation, "", "source and target language are both %q", b.SourceLang)
	}
	if len(b.Keys) == 0 {
		return Errorf(KindValidation, "", "batch has no keys")
	}

	seen := make(map[string]struct{}, len(b.Keys))
	for _, k := range b.Keys {
		if k == "" {
			return Errorf(KindValidation, "", "batch contains an empty key")
		}
		if _, dup := seen[k]; dup {
			return &Error{Kind: KindValidation, Key: k, Message: "duplicate key"}
		}
		seen[k] = struct{}{}
		if _, ok := b.Texts[k]; !ok {
			return &Error{Kind: KindValidation, Key: k, Message: "key has no source text"}
		}
	}

	for _, m := range b.Methods {
		if m != MethodLocal && m != MethodAI {
			return Errorf(KindValidation, "", "unknown method %q", m)
		}
	}
	return nil
}
