package gcs

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
)

type fakeObject struct {
	data        []byte
	contentType string
	acl         string
	updated     time.Time
}

// fakeStore keeps objects in memory and mimics the prefix and delimiter
// semantics of the objects listing.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string]*fakeObject
	writes  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]*fakeObject)}
}

func (f *fakeStore) get(key string) (*fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj, ok
}

func (f *fakeStore) attrs(_ context.Context, key string) (*storage.ObjectAttrs, error) {
	obj, ok := f.get(key)
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return obj.attrs(key), nil
}

func (o *fakeObject) attrs(key string) *storage.ObjectAttrs {
	return &storage.ObjectAttrs{
		Name:        key,
		Size:        int64(len(o.data)),
		ContentType: o.contentType,
		Updated:     o.updated,
	}
}

func (f *fakeStore) newReader(_ context.Context, key string) (io.ReadCloser, error) {
	obj, ok := f.get(key)
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (f *fakeStore) write(_ context.Context, key string, r io.Reader, contentType, predefinedACL string) (*storage.ObjectAttrs, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	obj := &fakeObject{data: data, contentType: contentType, acl: predefinedACL, updated: time.Now()}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = obj
	f.writes = append(f.writes, key)
	return obj.attrs(key), nil
}

func (f *fakeStore) copy(_ context.Context, src, dst, predefinedACL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[src]
	if !ok {
		return storage.ErrObjectNotExist
	}
	dup := *obj
	dup.data = append([]byte(nil), obj.data...)
	if predefinedACL != "" {
		dup.acl = predefinedACL
	}
	f.objects[dst] = &dup
	return nil
}

func (f *fakeStore) delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return storage.ErrObjectNotExist
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) list(_ context.Context, q *storage.Query, fn func(*storage.ObjectAttrs) error) error {
	f.mu.Lock()
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, q.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var results []*storage.ObjectAttrs
	seen := make(map[string]bool)
	for _, key := range keys {
		if q.Delimiter != "" {
			rest := key[len(q.Prefix):]
			if i := strings.Index(rest, q.Delimiter); i >= 0 {
				prefix := q.Prefix + rest[:i+len(q.Delimiter)]
				if !seen[prefix] {
					seen[prefix] = true
					results = append(results, &storage.ObjectAttrs{Prefix: prefix})
				}
				continue
			}
		}
		results = append(results, f.objects[key].attrs(key))
	}
	f.mu.Unlock()

	for _, attrs := range results {
		if err := fn(attrs); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) acl(_ context.Context, key string) ([]storage.ACLRule, error) {
	obj, ok := f.get(key)
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	rules := []storage.ACLRule{{Entity: storage.ACLEntity("project-owners-123"), Role: storage.RoleOwner}}
	if obj.acl == aclPublic {
		rules = append(rules, storage.ACLRule{Entity: storage.AllUsers, Role: storage.RoleReader})
	}
	return rules, nil
}

func (f *fakeStore) setACL(_ context.Context, key, predefinedACL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return storage.ErrObjectNotExist
	}
	obj.acl = predefinedACL
	return nil
}

var _ store = (*fakeStore)(nil)
