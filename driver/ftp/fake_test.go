package ftp

import (
	"bytes"
	"io"
	"net/textproto"
	pathpkg "path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

// fakeServer is an in-memory FTP server tree keyed by absolute path.
type fakeServer struct {
	mu         sync.Mutex
	files      map[string][]byte
	dirs       map[string]bool
	noMLST     bool
	failList   map[string]bool
	mlstCalls  int
	quitCalled bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		files:    map[string][]byte{},
		dirs:     map[string]bool{"/": true},
		failList: map[string]bool{},
	}
}

func unavailable() error {
	return &textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "No such file or directory"}
}

func (s *fakeServer) entry(p string) *ftp.Entry {
	if data, ok := s.files[p]; ok {
		return &ftp.Entry{Name: pathpkg.Base(p), Type: ftp.EntryTypeFile, Size: uint64(len(data)), Time: time.Now()}
	}
	if s.dirs[p] {
		return &ftp.Entry{Name: pathpkg.Base(p), Type: ftp.EntryTypeFolder, Time: time.Now()}
	}
	return nil
}

func (s *fakeServer) List(p string) ([]*ftp.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failList[p] {
		return nil, unavailable()
	}
	if _, ok := s.files[p]; ok {
		return []*ftp.Entry{s.entry(p)}, nil
	}
	if !s.dirs[p] {
		return nil, unavailable()
	}

	var names []string
	for f := range s.files {
		if pathpkg.Dir(f) == p {
			names = append(names, f)
		}
	}
	for d := range s.dirs {
		if d != "/" && pathpkg.Dir(d) == p {
			names = append(names, d)
		}
	}
	sort.Strings(names)

	entries := []*ftp.Entry{{Name: ".", Type: ftp.EntryTypeFolder}, {Name: "..", Type: ftp.EntryTypeFolder}}
	for _, n := range names {
		entries = append(entries, s.entry(n))
	}
	return entries, nil
}

func (s *fakeServer) GetEntry(p string) (*ftp.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mlstCalls++
	if s.noMLST {
		return nil, &textproto.Error{Code: ftp.StatusNotImplemented, Msg: "not implemented"}
	}
	if e := s.entry(p); e != nil {
		return e, nil
	}
	return nil, unavailable()
}

func (s *fakeServer) Retr(p string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.files[p]
	if !ok {
		return nil, unavailable()
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

func (s *fakeServer) Stor(p string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirs[pathpkg.Dir(p)] {
		return unavailable()
	}
	s.files[p] = data
	return nil
}

func (s *fakeServer) Rename(from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.files[from]; ok {
		s.files[to] = data
		delete(s.files, from)
		return nil
	}
	if !s.dirs[from] {
		return unavailable()
	}
	for f, data := range s.files {
		if strings.HasPrefix(f, from+"/") {
			s.files[to+strings.TrimPrefix(f, from)] = data
			delete(s.files, f)
		}
	}
	for d := range s.dirs {
		if d == from || strings.HasPrefix(d, from+"/") {
			s.dirs[to+strings.TrimPrefix(d, from)] = true
			delete(s.dirs, d)
		}
	}
	return nil
}

func (s *fakeServer) Delete(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[p]; !ok {
		return unavailable()
	}
	delete(s.files, p)
	return nil
}

func (s *fakeServer) RemoveDirRecur(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirs[p] {
		return unavailable()
	}
	for f := range s.files {
		if strings.HasPrefix(f, p+"/") {
			delete(s.files, f)
		}
	}
	for d := range s.dirs {
		if d == p || strings.HasPrefix(d, p+"/") {
			delete(s.dirs, d)
		}
	}
	return nil
}

func (s *fakeServer) MakeDir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirs[p] || !s.dirs[pathpkg.Dir(p)] {
		return unavailable()
	}
	s.dirs[p] = true
	return nil
}

func (s *fakeServer) Quit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quitCalled = true
	return nil
}
