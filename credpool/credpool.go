// Package credpool implements round-robin rotation over a provider's
// secret keys. A Pool is owned by exactly one provider client and is not
// safe for concurrent use; the owner serializes access.
package credpool

import (
	"strings"

	"github.com/minios-linux/modtranslate/translate"
)

// ErrNoCredentials is returned by Current and Rotate on an empty pool.
var ErrNoCredentials = translate.Errorf(translate.KindNoCredentials, "", "credential pool is empty")

// Pool is an ordered sequence of secrets with a cursor.
type Pool struct {
	keys    []string
	current int
}

// New returns a pool over keys. Blank keys are dropped and duplicates
// collapse onto their first occurrence; order is otherwise kept.
func New(keys []string) *Pool {
	seen := make(map[string]struct{}, len(keys))
	p := &Pool{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		p.keys = append(p.keys, k)
	}
	return p
}

// Current returns the active secret.
func (p *Pool) Current() (string, error) {
	if len(p.keys) == 0 {
		return "", ErrNoCredentials
	}
	return p.keys[p.current], nil
}

// Rotate advances the cursor, wrapping after the last key, and returns the
// new active secret.
func (p *Pool) Rotate() (string, error) {
	if len(p.keys) == 0 {
		return "", ErrNoCredentials
	}
	p.current = (p.current + 1) % len(p.keys)
	return p.keys[p.current], nil
}

// Size returns the number of secrets.
func (p *Pool) Size() int { return len(p.keys) }

// CurrentIndex returns the cursor position.
func (p *Pool) CurrentIndex() int { return p.current }

// Reset moves the cursor back to the first secret.
func (p *Pool) Reset() { p.current = 0 }
