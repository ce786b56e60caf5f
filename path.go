package vfskit

import (
	"strings"
)

// NormalizePath converts a raw path into its canonical form.
//
// The canonical form uses "/" as the only separator, has no leading or
// trailing slash and contains no "." or ".." segments. The empty string is
// the root. Backslashes are treated as separators, so a drive prefix such as
// "C:\dir" becomes "C:/dir". Null bytes are dropped.
//
// A ".." that would climb above the root is never clamped: NormalizePath
// returns an error wrapping ErrInvalidPath instead.
func NormalizePath(raw string) (string, error) {
	p := strings.ReplaceAll(raw, "\x00", "")
	p = strings.ReplaceAll(p, "\\", "/")

	parts := make([]string, 0, strings.Count(p, "/")+1)
	for _, segment := range strings.Split(p, "/") {
		switch segment {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				return "", &PathError{Op: "normalize", Path: raw, Err: ErrInvalidPath}
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, segment)
		}
	}

	return strings.Join(parts, "/"), nil
}

// MustNormalizePath is like NormalizePath but panics on traversal.
// It is meant for constant paths in tests and setup code.
func MustNormalizePath(raw string) string {
	p, err := NormalizePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// NormalizePrefix trims trailing separators from prefix and appends exactly
// one. Leading separators are kept.
func NormalizePrefix(prefix, separator string) string {
	return strings.TrimRight(prefix, separator) + separator
}

// Dirname returns the parent directory of a canonical path, or "" when the
// path sits at the root.
func Dirname(p string) string {
	p = strings.TrimRight(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return strings.TrimRight(p[:idx], "/")
}

// Basename returns the last segment of p.
func Basename(p string) string {
	p = strings.TrimRight(p, "/")
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// PathInfo describes the components of a path.
type PathInfo struct {
	Path      string
	Dirname   string
	Basename  string
	Extension string
	Filename  string
}

// Pathinfo splits p into its components. It works on bytes around "/" and
// "." only, so multi-byte names pass through untouched.
func Pathinfo(p string) PathInfo {
	info := PathInfo{
		Path:     p,
		Dirname:  Dirname(p),
		Basename: Basename(p),
	}

	info.Filename = info.Basename
	if idx := strings.LastIndex(info.Basename, "."); idx >= 0 {
		info.Extension = info.Basename[idx+1:]
		info.Filename = info.Basename[:idx]
	}

	return info
}

// Extension returns the part of the base name after the last dot.
func Extension(p string) string {
	return Pathinfo(p).Extension
}

// JoinPath joins a canonical directory and a name without producing a
// leading slash for the root.
func JoinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if name == "" {
		return dir
	}
	return dir + "/" + name
}
