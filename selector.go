package vfskit

import (
	"context"
	"strings"

	"github.com/gobwas/glob"
)

// ============================================================================
// Selector Interface
// ============================================================================

// Selector filters the entries visited by FindFiles.
//
// Selectors compose with And, Or and Not:
//
//	sel := vfskit.And(
//	    vfskit.Glob("*.jpg"),
//	    vfskit.FuncSelector(func(m *vfskit.Metadata) bool {
//	        return m.Size != nil && *m.Size < 10<<20
//	    }),
//	)
//	files, err := vfskit.FindFiles(ctx, fs, "images", sel, true)
type Selector interface {
	// Match reports whether a file belongs in the result.
	Match(entry *Metadata) bool

	// TraverseDescendants reports whether FindFiles should descend into a
	// directory. Only called for directories.
	TraverseDescendants(entry *Metadata) bool
}

// Lister is the part of a filesystem FindFiles walks.
type Lister interface {
	ListContents(ctx context.Context, directory string, recursive bool) ([]Metadata, error)
}

// ============================================================================
// FindFiles
// ============================================================================

// FindFiles lists the files below directory accepted by selector. With
// recursive set it walks one level at a time, so a selector can prune
// subtrees before they are listed. A nil selector accepts everything.
func FindFiles(ctx context.Context, fs Lister, directory string, selector Selector, recursive bool) ([]Metadata, error) {
	if selector == nil {
		selector = All()
	}

	var results []Metadata
	if err := findFiles(ctx, fs, directory, selector, recursive, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func findFiles(ctx context.Context, fs Lister, directory string, selector Selector, recursive bool, results *[]Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	listing, err := fs.ListContents(ctx, directory, false)
	if err != nil {
		return err
	}

	for i := range listing {
		entry := &listing[i]
		if entry.IsDir() {
			if recursive && selector.TraverseDescendants(entry) {
				if err := findFiles(ctx, fs, entry.Path, selector, recursive, results); err != nil {
					return err
				}
			}
			continue
		}
		if selector.Match(entry) {
			*results = append(*results, *entry)
		}
	}
	return nil
}

// ============================================================================
// Built-in Selectors
// ============================================================================

type allSelector struct{}

func (allSelector) Match(*Metadata) bool               { return true }
func (allSelector) TraverseDescendants(*Metadata) bool { return true }

// All matches every file and descends into every directory.
func All() Selector {
	return allSelector{}
}

type globSelector struct {
	g glob.Glob
}

// Glob matches file basenames against a shell pattern: *, ?, [abc], [a-z]
// and {a,b}. An invalid pattern matches nothing.
//
//	Glob("*.txt")
//	Glob("image_????.{jpg,png}")
func Glob(pattern string) Selector {
	g, err := glob.Compile(pattern)
	if err != nil {
		return globSelector{}
	}
	return globSelector{g: g}
}

func (s globSelector) Match(entry *Metadata) bool {
	return s.g != nil && s.g.Match(entry.Basename())
}

func (globSelector) TraverseDescendants(*Metadata) bool { return true }

type depthSelector struct {
	maxDepth int
	base     string
}

// Depth limits results to maxDepth levels below base. Depth 1 is the
// direct children of base.
func Depth(maxDepth int, base string) Selector {
	return depthSelector{maxDepth: maxDepth, base: strings.Trim(base, "/")}
}

func (s depthSelector) depth(p string) int {
	rel := p
	if s.base != "" {
		rel = strings.TrimPrefix(strings.TrimPrefix(p, s.base), "/")
	}
	if rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func (s depthSelector) Match(entry *Metadata) bool {
	return s.depth(entry.Path) <= s.maxDepth
}

func (s depthSelector) TraverseDescendants(entry *Metadata) bool {
	return s.depth(entry.Path) < s.maxDepth
}

// ============================================================================
// Composition
// ============================================================================

type andSelector []Selector

// And matches when every selector matches and descends only where every
// selector allows it.
func And(selectors ...Selector) Selector {
	return andSelector(selectors)
}

func (s andSelector) Match(entry *Metadata) bool {
	for _, sel := range s {
		if !sel.Match(entry) {
			return false
		}
	}
	return true
}

func (s andSelector) TraverseDescendants(entry *Metadata) bool {
	for _, sel := range s {
		if !sel.TraverseDescendants(entry) {
			return false
		}
	}
	return true
}

type orSelector []Selector

// Or matches when any selector matches.
func Or(selectors ...Selector) Selector {
	return orSelector(selectors)
}

func (s orSelector) Match(entry *Metadata) bool {
	for _, sel := range s {
		if sel.Match(entry) {
			return true
		}
	}
	return false
}

func (s orSelector) TraverseDescendants(entry *Metadata) bool {
	for _, sel := range s {
		if sel.TraverseDescendants(entry) {
			return true
		}
	}
	return false
}

type notSelector struct {
	sel Selector
}

// Not inverts the match of sel. Traversal is unaffected.
func Not(sel Selector) Selector {
	return notSelector{sel: sel}
}

func (s notSelector) Match(entry *Metadata) bool { return !s.sel.Match(entry) }

func (notSelector) TraverseDescendants(*Metadata) bool { return true }

type funcSelector struct {
	match    func(*Metadata) bool
	traverse func(*Metadata) bool
}

// FuncSelector matches with fn and descends everywhere.
func FuncSelector(fn func(*Metadata) bool) Selector {
	return funcSelector{match: fn, traverse: func(*Metadata) bool { return true }}
}

// FuncSelectorFull builds a selector from a match and a traverse function.
func FuncSelectorFull(match, traverse func(*Metadata) bool) Selector {
	return funcSelector{match: match, traverse: traverse}
}

func (s funcSelector) Match(entry *Metadata) bool               { return s.match(entry) }
func (s funcSelector) TraverseDescendants(entry *Metadata) bool { return s.traverse(entry) }
