// Package attach resolves attachment references against the batch pool and
// computes the global attachment set.
package attach

import (
	"log/slog"
	"strings"

	"github.com/envialite/envialite/internal/merge"
	"github.com/envialite/envialite/internal/recipient"
)

// Entry is one attachment in the batch pool. Data holds the base64 payload
// as supplied by the caller; it is decoded only at composition time so a
// corrupt payload fails just the messages that reference it.
type Entry struct {
	Name        string
	ContentType string
	Data        string
}

// Pool is the batch attachment pool, keyed by name with insertion order
// preserved. Fuzzy matching enumerates entries in insertion order, which
// makes tie-breaking between ambiguous keys deterministic.
type Pool struct {
	entries []Entry
	index   map[string]int
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{index: make(map[string]int)}
}

// Add inserts an entry, replacing any existing entry with the same name
// in place.
func (p *Pool) Add(e Entry) {
	if i, ok := p.index[e.Name]; ok {
		p.entries[i] = e
		return
	}
	p.index[e.Name] = len(p.entries)
	p.entries = append(p.entries, e)
}

// Get returns the entry with the exact given name.
func (p *Pool) Get(name string) (Entry, bool) {
	i, ok := p.index[name]
	if !ok {
		return Entry{}, false
	}
	return p.entries[i], true
}

// Len returns the number of pool entries.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Names returns the pool keys in insertion order.
func (p *Pool) Names() []string {
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.Name
	}
	return names
}

// Match finds the pool entry for a candidate filename using ordered match
// strategies: exact equality, candidate-is-prefix-of-key, key-is-prefix-of-
// candidate, candidate-is-substring-of-key. The first strategy with a hit
// wins; within a strategy the first pool entry in insertion order wins.
// At most one entry is bound per candidate. The later strategies are
// heuristics that tolerate client-side filename mangling and can
// false-positive on ambiguous pool keys.
func (p *Pool) Match(candidate string) (Entry, bool) {
	if candidate == "" {
		return Entry{}, false
	}

	if e, ok := p.Get(candidate); ok {
		return e, true
	}
	for _, e := range p.entries {
		if strings.HasPrefix(e.Name, candidate) {
			return e, true
		}
	}
	for _, e := range p.entries {
		if strings.HasPrefix(candidate, e.Name) {
			return e, true
		}
	}
	for _, e := range p.entries {
		if strings.Contains(e.Name, candidate) {
			return e, true
		}
	}
	return Entry{}, false
}

// references collects the candidate filenames for one recipient: the
// ;-delimited entries of its "attachment" column first, then every
// {{attachment:<expr>}} template reference with the expression merged
// against the recipient's fields.
func references(r *recipient.Recipient, template string) []string {
	var refs []string

	for _, part := range strings.Split(r.Field("attachment"), ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			refs = append(refs, trimmed)
		}
	}

	for _, expr := range merge.AttachmentExprs(template) {
		merged := strings.TrimSpace(merge.Merge(expr, r.Fields))
		if merged != "" {
			refs = append(refs, merged)
		}
	}

	return refs
}

// ResolveGlobals computes the set of pool keys referenced by no recipient
// and no template placeholder across the whole batch. Those attachments are
// implicitly sent to every recipient. The result does not depend on the
// order of the recipient list.
func ResolveGlobals(pool *Pool, recipients []*recipient.Recipient, template string) map[string]struct{} {
	referenced := make(map[string]struct{})
	for _, r := range recipients {
		for _, ref := range references(r, template) {
			if e, ok := pool.Match(ref); ok {
				referenced[e.Name] = struct{}{}
			}
		}
	}

	globals := make(map[string]struct{})
	for _, name := range pool.Names() {
		if _, ok := referenced[name]; !ok {
			globals[name] = struct{}{}
		}
	}
	return globals
}

// ResolveForRecipient returns the attachments for one recipient's message:
// its own column references, then its merged template references, then
// every global attachment, deduplicated by pool key. References matching no
// pool entry are logged and dropped; the operator may intentionally omit
// optional attachments per recipient.
func ResolveForRecipient(r *recipient.Recipient, template string, pool *Pool, globals map[string]struct{}) []Entry {
	var resolved []Entry
	seen := make(map[string]struct{})

	for _, ref := range references(r, template) {
		e, ok := pool.Match(ref)
		if !ok {
			slog.Warn("attachment reference matched no pool entry",
				"reference", ref,
				"row", r.RowNumber,
			)
			continue
		}
		if _, dup := seen[e.Name]; dup {
			continue
		}
		seen[e.Name] = struct{}{}
		resolved = append(resolved, e)
	}

	for _, e := range pool.entries {
		if _, global := globals[e.Name]; !global {
			continue
		}
		if _, dup := seen[e.Name]; dup {
			continue
		}
		seen[e.Name] = struct{}{}
		resolved = append(resolved, e)
	}

	return resolved
}
