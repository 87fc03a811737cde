// Package templater renders promotional message variants.
package templater

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// TemplateSetVersion identifies the template set. Changing any template
// changes fingerprints, so bump the version with it.
const TemplateSetVersion = "community-v1"

// Params are the values substituted into a template.
type Params struct {
	Count int
	Link  string
}

var templates = []func(p Params) string{
	func(p Params) string {
		return fmt.Sprintf("%d must-see celebrity fashion moments ✨\nFull compilation is live — watch now 👇\n%s", p.Count, p.Link)
	},
	func(p Params) string {
		return fmt.Sprintf("A fresh compilation is up 🎬\n%d standout celebrity fashion moments in one video.\n▶️ %s", p.Count, p.Link)
	},
	func(p Params) string {
		return fmt.Sprintf("New compilation uploaded!\n%d celebrity looks worth watching 👀\nWatch here 👇\n%s", p.Count, p.Link)
	},
	func(p Params) string {
		return fmt.Sprintf("Just dropped: %d celebrity fashion moments\nWatch the full video now 👇\n%s", p.Count, p.Link)
	},
}

// Len returns the number of templates in the set.
func Len() int { return len(templates) }

// RenderIndex substitutes p into template i. It is pure.
func RenderIndex(i int, p Params) (string, error) {
	if i < 0 || i >= len(templates) {
		return "", fmt.Errorf("templater: index %d out of range [0,%d)", i, len(templates))
	}
	return templates[i](p), nil
}

// Templater picks a template uniformly at random.
type Templater struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Templater drawing from rng. A nil rng is seeded from the clock.
func New(rng *rand.Rand) *Templater {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Templater{rng: rng}
}

// Render returns a rendered variant and the index it came from.
func (t *Templater) Render(p Params) (string, int) {
	t.mu.Lock()
	i := t.rng.Intn(len(templates))
	t.mu.Unlock()
	return templates[i](p), i
}
