package vfskit

import (
	"sort"
	"strings"
)

// FormatListing filters an adapter listing down to the requested scope and
// sorts it by path.
//
// Non-recursive listings keep direct children of directory only; recursive
// listings keep everything below it. Entries without a path are dropped.
// With caseSensitive false, scope checks ignore case.
func FormatListing(directory string, recursive, caseSensitive bool, listing []Metadata) []Metadata {
	out := make([]Metadata, 0, len(listing))
	for _, entry := range listing {
		if entry.Path == "" {
			continue
		}
		if !inScope(directory, recursive, caseSensitive, entry.Path) {
			continue
		}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Path) < strings.ToLower(out[j].Path)
	})
	return out
}

func inScope(directory string, recursive, caseSensitive bool, p string) bool {
	if !caseSensitive {
		directory = strings.ToLower(directory)
		p = strings.ToLower(p)
	}
	if recursive {
		return directory == "" || strings.HasPrefix(p, directory+"/")
	}
	return Dirname(p) == directory
}

// EmulateDirectories adds directory entries implied by the paths of a flat
// listing, for backends that only store files.
func EmulateDirectories(listing []Metadata) []Metadata {
	known := make(map[string]bool)
	implied := make(map[string]bool)

	for _, entry := range listing {
		if entry.IsDir() {
			known[entry.Path] = true
		}
		for dir := Dirname(entry.Path); dir != ""; dir = Dirname(dir) {
			implied[dir] = true
		}
	}

	dirs := make([]string, 0, len(implied))
	for dir := range implied {
		if !known[dir] {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)

	out := make([]Metadata, 0, len(listing)+len(dirs))
	out = append(out, listing...)
	for _, dir := range dirs {
		out = append(out, Metadata{Path: dir, Type: TypeDir})
	}
	return out
}
