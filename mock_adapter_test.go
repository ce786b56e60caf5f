package vfskit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
)

var errBackend = errors.New("backend failure")

// mockAdapter is a map backed Adapter for facade tests. Operations named in
// fail return errBackend; every call is recorded in calls.
type mockAdapter struct {
	mu        sync.Mutex
	files     map[string][]byte
	dirs      map[string]bool
	vis       map[string]Visibility
	overwrite bool
	fail      map[string]bool
	calls     []string
	lastCfg   *Config
	streams   []*trackedStream
}

// trackedStream records whether the reader handed out by ReadStream was
// closed.
type trackedStream struct {
	io.ReadCloser
	closed bool
}

func (s *trackedStream) Close() error {
	s.closed = true
	return s.ReadCloser.Close()
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
		vis:   make(map[string]Visibility),
		fail:  make(map[string]bool),
	}
}

// overwritingAdapter reports write-overwrites capability.
type overwritingAdapter struct {
	*mockAdapter
}

func (overwritingAdapter) SupportsOverwrite() bool { return true }

func (m *mockAdapter) record(op, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op+" "+path)
	if m.fail[op] {
		return errBackend
	}
	return nil
}

func (m *mockAdapter) called(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.HasPrefix(c, op+" ") {
			n++
		}
	}
	return n
}

func (m *mockAdapter) put(path, contents string) {
	m.files[path] = []byte(contents)
}

func (m *mockAdapter) Has(_ context.Context, path string) (bool, error) {
	if err := m.record("has", path); err != nil {
		return false, err
	}
	_, isFile := m.files[path]
	return isFile || m.dirs[path], nil
}

func (m *mockAdapter) Read(_ context.Context, path string) (*Object, error) {
	if err := m.record("read", path); err != nil {
		return nil, err
	}
	contents, ok := m.files[path]
	if !ok {
		return nil, NewPathError("read", path, ErrFileNotFound)
	}
	return &Object{Metadata: m.meta(path), Contents: contents}, nil
}

func (m *mockAdapter) ReadStream(ctx context.Context, path string) (*Object, error) {
	if err := m.record("readstream", path); err != nil {
		return nil, err
	}
	obj, err := StreamFromRead(ctx, m, path)
	if err != nil {
		return nil, err
	}
	stream := &trackedStream{ReadCloser: obj.Stream}
	m.mu.Lock()
	m.streams = append(m.streams, stream)
	m.mu.Unlock()
	obj.Stream = stream
	return obj, nil
}

// openStreams counts streams that were handed out and never closed.
func (m *mockAdapter) openStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.streams {
		if !s.closed {
			n++
		}
	}
	return n
}

func (m *mockAdapter) write(op, path string, contents []byte, cfg *Config) (*Metadata, error) {
	if err := m.record(op, path); err != nil {
		return nil, err
	}
	m.lastCfg = cfg
	m.files[path] = append([]byte(nil), contents...)
	if v := cfg.GetString(KeyVisibility, ""); v != "" {
		m.vis[path] = Visibility(v)
	}
	meta := m.meta(path)
	return &meta, nil
}

func (m *mockAdapter) Write(_ context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	return m.write("write", path, contents, cfg)
}

func (m *mockAdapter) WriteStream(_ context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	contents, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.write("writestream", path, contents, cfg)
}

func (m *mockAdapter) Update(_ context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	return m.write("update", path, contents, cfg)
}

func (m *mockAdapter) UpdateStream(_ context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	contents, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.write("updatestream", path, contents, cfg)
}

func (m *mockAdapter) Rename(_ context.Context, path, newpath string) error {
	if err := m.record("rename", path); err != nil {
		return err
	}
	m.files[newpath] = m.files[path]
	delete(m.files, path)
	return nil
}

func (m *mockAdapter) Copy(_ context.Context, path, newpath string) error {
	if err := m.record("copy", path); err != nil {
		return err
	}
	m.files[newpath] = bytes.Clone(m.files[path])
	return nil
}

func (m *mockAdapter) Delete(_ context.Context, path string) error {
	if err := m.record("delete", path); err != nil {
		return err
	}
	delete(m.files, path)
	return nil
}

func (m *mockAdapter) DeleteDir(_ context.Context, dirname string) error {
	if err := m.record("deletedir", dirname); err != nil {
		return err
	}
	for p := range m.files {
		if strings.HasPrefix(p, dirname+"/") {
			delete(m.files, p)
		}
	}
	delete(m.dirs, dirname)
	return nil
}

func (m *mockAdapter) CreateDir(_ context.Context, dirname string, cfg *Config) (*Metadata, error) {
	if err := m.record("createdir", dirname); err != nil {
		return nil, err
	}
	m.lastCfg = cfg
	m.dirs[dirname] = true
	return &Metadata{Path: dirname, Type: TypeDir}, nil
}

func (m *mockAdapter) ListContents(_ context.Context, directory string, recursive bool) ([]Metadata, error) {
	if err := m.record("listcontents", directory); err != nil {
		return nil, err
	}
	// Returns everything; scoping is the facade's job.
	var out []Metadata
	for p := range m.files {
		out = append(out, m.meta(p))
	}
	for p := range m.dirs {
		out = append(out, Metadata{Path: p, Type: TypeDir})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path > out[j].Path })
	return out, nil
}

func (m *mockAdapter) GetMetadata(_ context.Context, path string) (*Metadata, error) {
	if err := m.record("getmetadata", path); err != nil {
		return nil, err
	}
	if m.dirs[path] {
		return &Metadata{Path: path, Type: TypeDir}, nil
	}
	meta := m.meta(path)
	return &meta, nil
}

func (m *mockAdapter) GetSize(ctx context.Context, path string) (*Metadata, error) {
	return m.GetMetadata(ctx, path)
}

func (m *mockAdapter) GetMimetype(ctx context.Context, path string) (*Metadata, error) {
	return m.GetMetadata(ctx, path)
}

func (m *mockAdapter) GetTimestamp(ctx context.Context, path string) (*Metadata, error) {
	return m.GetMetadata(ctx, path)
}

func (m *mockAdapter) GetVisibility(ctx context.Context, path string) (*Metadata, error) {
	return m.GetMetadata(ctx, path)
}

func (m *mockAdapter) SetVisibility(_ context.Context, path string, visibility Visibility) (*Metadata, error) {
	if err := m.record("setvisibility", path); err != nil {
		return nil, err
	}
	m.vis[path] = visibility
	meta := m.meta(path)
	return &meta, nil
}

func (m *mockAdapter) meta(path string) Metadata {
	vis, ok := m.vis[path]
	if !ok {
		vis = Public
	}
	return Metadata{
		Path:       path,
		Type:       TypeFile,
		Timestamp:  Ptr(int64(1700000000)),
		Size:       Ptr(int64(len(m.files[path]))),
		Mimetype:   Ptr(GuessMimeType(path, m.files[path])),
		Visibility: Ptr(vis),
	}
}

var _ Adapter = (*mockAdapter)(nil)
