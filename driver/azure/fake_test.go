package azure

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

type fakeBlob struct {
	data        []byte
	contentType string
	modified    time.Time
}

// fakeContainer keeps blobs in memory and answers delimited listings with
// virtual directories the way the blob service does.
type fakeContainer struct {
	mu      sync.Mutex
	blobs   map[string]*fakeBlob
	deletes []string
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{blobs: make(map[string]*fakeBlob)}
}

func notFound() error {
	return &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound), StatusCode: http.StatusNotFound}
}

func (f *fakeContainer) get(name string) (*fakeBlob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[name]
	return b, ok
}

func (b *fakeBlob) props() blobProps {
	return blobProps{size: int64(len(b.data)), contentType: b.contentType, modified: b.modified}
}

func (f *fakeContainer) properties(_ context.Context, name string) (blobProps, error) {
	b, ok := f.get(name)
	if !ok {
		return blobProps{}, notFound()
	}
	return b.props(), nil
}

func (f *fakeContainer) download(_ context.Context, name string) (io.ReadCloser, error) {
	b, ok := f.get(name)
	if !ok {
		return nil, notFound()
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func (f *fakeContainer) upload(_ context.Context, name string, r io.Reader, contentType string) (blobProps, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return blobProps{}, err
	}
	b := &fakeBlob{data: data, contentType: contentType, modified: time.Now()}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[name] = b
	return b.props(), nil
}

func (f *fakeContainer) copy(_ context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[src]
	if !ok {
		return notFound()
	}
	dup := *b
	dup.data = append([]byte(nil), b.data...)
	f.blobs[dst] = &dup
	return nil
}

func (f *fakeContainer) delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[name]; !ok {
		return notFound()
	}
	delete(f.blobs, name)
	f.deletes = append(f.deletes, name)
	return nil
}

func (f *fakeContainer) list(_ context.Context, prefix string, delimited bool, fn func(string, *blobProps) error) error {
	type entry struct {
		name  string
		props *blobProps
	}

	f.mu.Lock()
	var names []string
	for name := range f.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var entries []entry
	seen := make(map[string]bool)
	for _, name := range names {
		if delimited {
			rest := name[len(prefix):]
			if i := strings.Index(rest, "/"); i >= 0 {
				dir := prefix + rest[:i+1]
				if !seen[dir] {
					seen[dir] = true
					entries = append(entries, entry{name: dir})
				}
				continue
			}
		}
		props := f.blobs[name].props()
		entries = append(entries, entry{name: name, props: &props})
	}
	f.mu.Unlock()

	for _, e := range entries {
		if err := fn(e.name, e.props); err != nil {
			return err
		}
	}
	return nil
}

var _ store = (*fakeContainer)(nil)
