// Package lockfile implements modtranslate.lock, which records a checksum
// of every source string per translated output file. On the next run only
// new or changed keys are sent for translation; unchanged keys keep the
// translation already present in the output file.
//
// The lock file lives next to the output file.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/modtranslate/translate"
)

// LockFileName is the default lock file name.
const LockFileName = "modtranslate.lock"

// Version is the lock file format version.
const Version = 1

// LockFile is the modtranslate.lock structure. Target keys are output file
// paths; entry keys are language-file keys.
type LockFile struct {
	Version   int                          `yaml:"version"`
	Checksums map[string]map[string]string `yaml:"checksums"` // target -> key -> md5

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the lock file from dir.
// Returns an empty lock file if the file doesn't exist.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lf.path = path

	if lf.Checksums == nil {
		lf.Checksums = make(map[string]map[string]string)
	}
	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}
	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksum operations
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// TargetKey normalizes an output path for use as a target.
func TargetKey(filePath string) string {
	return filepath.ToSlash(filepath.Clean(filePath))
}

// EntryContent is what gets hashed for one key. The language pair is
// included so retargeting an output file triggers re-translation.
func EntryContent(sourceLang, targetLang, text string) string {
	return sourceLang + "\x00" + targetLang + "\x00" + text
}

// IsChanged reports whether a key is new or its content has changed since
// it was last recorded.
func (lf *LockFile) IsChanged(target, key, content string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	keys, ok := lf.Checksums[target]
	if !ok {
		return true
	}
	oldHash, ok := keys[key]
	if !ok {
		return true
	}
	return oldHash != Hash(content)
}

// Update records the checksum of one key.
func (lf *LockFile) Update(target, key, content string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.Checksums[target] == nil {
		lf.Checksums[target] = make(map[string]string)
	}
	lf.Checksums[target][key] = Hash(content)
}

// Clean removes entries of target whose keys are not in currentKeys.
func (lf *LockFile) Clean(target string, currentKeys []string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	existing := lf.Checksums[target]
	if existing == nil {
		return
	}

	valid := make(map[string]bool, len(currentKeys))
	for _, k := range currentKeys {
		valid[k] = true
	}
	for k := range existing {
		if !valid[k] {
			delete(existing, k)
		}
	}
	if len(existing) == 0 {
		delete(lf.Checksums, target)
	}
}

// ---------------------------------------------------------------------------
// Batch planning
// ---------------------------------------------------------------------------

// Plan splits b for target: keys whose source is unchanged and that already
// have a translation in existing are reused; everything else is pending,
// in batch order.
func (lf *LockFile) Plan(target string, b translate.Batch, existing map[string]string) (reuse map[string]string, pending []string) {
	reuse = make(map[string]string)
	for _, k := range b.Keys {
		prev, ok := existing[k]
		if ok && !lf.IsChanged(target, k, EntryContent(b.SourceLang, b.TargetLang, b.Texts[k])) {
			reuse[k] = prev
			continue
		}
		pending = append(pending, k)
	}
	return reuse, pending
}

// Record stores checksums for the keys of b present in translated and
// forgets keys no longer in b.
func (lf *LockFile) Record(target string, b translate.Batch, translated map[string]string) {
	for _, k := range b.Keys {
		if _, ok := translated[k]; ok {
			lf.Update(target, k, EntryContent(b.SourceLang, b.TargetLang, b.Texts[k]))
		}
	}
	lf.Clean(target, b.Keys)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of targets and total keys in the lock file.
func (lf *LockFile) Stats() (targets, keys int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	targets = len(lf.Checksums)
	for _, m := range lf.Checksums {
		keys += len(m)
	}
	return
}

// Targets returns sorted list of target keys.
func (lf *LockFile) Targets() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	targets := make([]string, 0, len(lf.Checksums))
	for t := range lf.Checksums {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}

// Summary returns a human-readable summary string.
func (lf *LockFile) Summary() string {
	targets, keys := lf.Stats()
	if targets == 0 {
		return "empty"
	}

	var parts []string
	for _, t := range lf.Targets() {
		lf.mu.Lock()
		n := len(lf.Checksums[t])
		lf.mu.Unlock()
		parts = append(parts, fmt.Sprintf("%s: %d keys", t, n))
	}
	return fmt.Sprintf("%d targets, %d keys (%s)", targets, keys, strings.Join(parts, ", "))
}
