package local

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/gobeaver/vfskit"
)

// Watch implements vfskit.Watcher using fsnotify. Patterns use glob syntax
// relative to the root with "/" as separator, e.g. "*.txt" or "logs/**".
// The token fires once, on the first matching event.
func (a *Adapter) Watch(ctx context.Context, pattern string) (vfskit.ChangeToken, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &vfskit.PathError{Op: "watch", Path: pattern, Err: vfskit.ErrInvalidArgument}
	}

	watchPath, err := a.fullPath("watch", staticPrefix(pattern))
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &vfskit.PathError{Op: "watch", Path: pattern, Err: err}
	}
	if err := watcher.Add(watchPath); err != nil {
		watcher.Close()
		return nil, &vfskit.PathError{Op: "watch", Path: pattern, Err: err}
	}

	// fsnotify is not recursive
	if strings.Contains(pattern, "**") {
		_ = filepath.WalkDir(watchPath, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() && p != watchPath {
				_ = watcher.Add(p)
			}
			return nil
		})
	}

	token := vfskit.NewCallbackChangeToken()

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				rel, err := filepath.Rel(a.root, event.Name)
				if err != nil {
					continue
				}
				if g.Match(filepath.ToSlash(rel)) {
					token.SignalChange()
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return token, nil
}

// staticPrefix returns the directory part of pattern before its first glob
// metacharacter.
func staticPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*?[{")
	if idx < 0 {
		return vfskit.Dirname(pattern)
	}
	if slash := strings.LastIndex(pattern[:idx], "/"); slash >= 0 {
		return pattern[:slash]
	}
	return ""
}
