package vfskit

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Plugin adds a named method to a Filesystem or MountManager.
//
// The owning Filesystem is bound with SetFilesystem right before every
// Handle call, so a plugin shared between facades always sees the one it is
// invoked on.
type Plugin interface {
	// Method returns the name the plugin is invoked by.
	Method() string

	// SetFilesystem binds the facade the next Handle call operates on.
	SetFilesystem(fs FilesystemInterface)

	// Handle runs the plugin with positional arguments.
	Handle(ctx context.Context, args ...any) (any, error)
}

// FilesystemInterface is the facade surface plugins and handlers work with.
// *Filesystem implements it.
type FilesystemInterface interface {
	Has(ctx context.Context, path string) (bool, error)
	Read(ctx context.Context, path string) ([]byte, bool, error)
	ReadStream(ctx context.Context, path string) (io.ReadCloser, bool, error)
	Write(ctx context.Context, path string, contents []byte, opts ...Option) (bool, error)
	WriteStream(ctx context.Context, path string, r io.Reader, opts ...Option) (bool, error)
	Update(ctx context.Context, path string, contents []byte, opts ...Option) (bool, error)
	UpdateStream(ctx context.Context, path string, r io.Reader, opts ...Option) (bool, error)
	Put(ctx context.Context, path string, contents []byte, opts ...Option) (bool, error)
	PutStream(ctx context.Context, path string, r io.Reader, opts ...Option) (bool, error)
	ReadAndDelete(ctx context.Context, path string) ([]byte, bool, error)
	Rename(ctx context.Context, path, newpath string) (bool, error)
	Copy(ctx context.Context, path, newpath string) (bool, error)
	Delete(ctx context.Context, path string) (bool, error)
	DeleteDir(ctx context.Context, dirname string) (bool, error)
	CreateDir(ctx context.Context, dirname string, opts ...Option) (bool, error)
	ListContents(ctx context.Context, directory string, recursive bool) ([]Metadata, error)
	GetMetadata(ctx context.Context, path string) (*Metadata, bool, error)
	GetSize(ctx context.Context, path string) (int64, bool, error)
	GetMimetype(ctx context.Context, path string) (string, bool, error)
	GetTimestamp(ctx context.Context, path string) (int64, bool, error)
	GetVisibility(ctx context.Context, path string) (Visibility, bool, error)
	SetVisibility(ctx context.Context, path string, visibility Visibility) (bool, error)
	Get(ctx context.Context, path string, handler Handler) (Handler, error)
}

// BasePlugin can be embedded by plugins to store the bound facade.
type BasePlugin struct {
	fs FilesystemInterface
}

// SetFilesystem implements Plugin.
func (p *BasePlugin) SetFilesystem(fs FilesystemInterface) {
	p.fs = fs
}

// Filesystem returns the bound facade.
func (p *BasePlugin) Filesystem() FilesystemInterface {
	return p.fs
}

// pluginRegistry maps method names to plugins. Re-registration replaces.
type pluginRegistry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

func (r *pluginRegistry) add(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.plugins == nil {
		r.plugins = make(map[string]Plugin)
	}
	r.plugins[p.Method()] = p
}

func (r *pluginRegistry) get(method string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[method]
	return p, ok
}

// invoke binds fs and runs the plugin registered for method. found is false
// when no plugin is registered.
func (r *pluginRegistry) invoke(ctx context.Context, method string, fs FilesystemInterface, args []any) (result any, found bool, err error) {
	p, ok := r.get(method)
	if !ok {
		return nil, false, nil
	}
	p.SetFilesystem(fs)
	result, err = p.Handle(ctx, args...)
	return result, true, err
}

func methodNotFound(method string) error {
	return fmt.Errorf("%w %s", ErrMethodNotFound, method)
}

// ============================================================================
// Plugin argument helpers
// ============================================================================

// StringArg returns args[i] as a string, def when absent, or an
// ErrInvalidArgument error when it has another type.
func StringArg(args []any, i int, def string) (string, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: argument #%d should be a string, got %T", ErrInvalidArgument, i+1, args[i])
	}
	return s, nil
}

// BoolArg returns args[i] as a bool, def when absent.
func BoolArg(args []any, i int, def bool) (bool, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	b, ok := args[i].(bool)
	if !ok {
		return false, fmt.Errorf("%w: argument #%d should be a bool, got %T", ErrInvalidArgument, i+1, args[i])
	}
	return b, nil
}

// StringsArg returns args[i] as a string slice, def when absent.
func StringsArg(args []any, i int, def []string) ([]string, error) {
	if i >= len(args) || args[i] == nil {
		return def, nil
	}
	s, ok := args[i].([]string)
	if !ok {
		return nil, fmt.Errorf("%w: argument #%d should be a []string, got %T", ErrInvalidArgument, i+1, args[i])
	}
	return s, nil
}

// bytesArg accepts []byte or string contents.
func bytesArg(args []any, i int) ([]byte, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: argument #%d is required", ErrInvalidArgument, i+1)
	}
	switch v := args[i].(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%w: argument #%d should be contents, got %T", ErrInvalidArgument, i+1, args[i])
	}
}

func readerArg(args []any, i int) (io.Reader, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: argument #%d is required", ErrInvalidArgument, i+1)
	}
	r, ok := args[i].(io.Reader)
	if !ok || r == nil {
		return nil, fmt.Errorf("%w: argument #%d should be an io.Reader, got %T", ErrInvalidArgument, i+1, args[i])
	}
	return r, nil
}

// optionsArg collects trailing Option and *Config arguments starting at i.
func optionsArg(args []any, i int) ([]Option, error) {
	var opts []Option
	for j := i; j < len(args); j++ {
		switch v := args[j].(type) {
		case nil:
		case Option:
			opts = append(opts, v)
		case func(*Config):
			opts = append(opts, v)
		case *Config:
			for _, k := range v.Keys() {
				opts = append(opts, WithSetting(k, v.Get(k, nil)))
			}
		case map[string]any:
			for k, val := range v {
				opts = append(opts, WithSetting(k, val))
			}
		default:
			return nil, fmt.Errorf("%w: argument #%d should be a config, got %T", ErrInvalidArgument, j+1, args[j])
		}
	}
	return opts, nil
}

// valueOrFalse mirrors the facade's "value or false" result for Invoke.
func valueOrFalse[T any](v T, ok bool, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if !ok {
		return false, nil
	}
	return v, nil
}

type builtinMethod func(ctx context.Context, fs *Filesystem, args []any) (any, error)

// builtinMethods exposes the facade operations to Invoke by name.
var builtinMethods = map[string]builtinMethod{
	"has": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		return fs.Has(ctx, p)
	},
	"read": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		return valueOrFalse(fs.Read(ctx, p))
	},
	"readStream": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		return valueOrFalse(fs.ReadStream(ctx, p))
	},
	"readAndDelete": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		return valueOrFalse(fs.ReadAndDelete(ctx, p))
	},
	"write":        contentsMethod((*Filesystem).Write),
	"update":       contentsMethod((*Filesystem).Update),
	"put":          contentsMethod((*Filesystem).Put),
	"writeStream":  streamMethod((*Filesystem).WriteStream),
	"updateStream": streamMethod((*Filesystem).UpdateStream),
	"putStream":    streamMethod((*Filesystem).PutStream),
	"rename":       twoPathMethod((*Filesystem).Rename),
	"copy":         twoPathMethod((*Filesystem).Copy),
	"delete":       onePathMethod((*Filesystem).Delete),
	"deleteDir":    onePathMethod((*Filesystem).DeleteDir),
	"createDir": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		opts, err := optionsArg(args, 1)
		if err != nil {
			return nil, err
		}
		return fs.CreateDir(ctx, p, opts...)
	},
	"listContents": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		dir, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		recursive, err := BoolArg(args, 1, false)
		if err != nil {
			return nil, err
		}
		return fs.ListContents(ctx, dir, recursive)
	},
	"getMetadata": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		return valueOrFalse(fs.GetMetadata(ctx, p))
	},
	"getSize": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		return valueOrFalse(fs.GetSize(ctx, p))
	},
	"getMimetype": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		return valueOrFalse(fs.GetMimetype(ctx, p))
	},
	"getTimestamp": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		return valueOrFalse(fs.GetTimestamp(ctx, p))
	},
	"getVisibility": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		return valueOrFalse(fs.GetVisibility(ctx, p))
	},
	"setVisibility": func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		var v Visibility
		switch raw := argAt(args, 1).(type) {
		case Visibility:
			v = raw
		case string:
			v = Visibility(raw)
		default:
			return nil, fmt.Errorf("%w: argument #2 should be a visibility, got %T", ErrInvalidArgument, raw)
		}
		return fs.SetVisibility(ctx, p, v)
	},
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func onePathMethod(fn func(*Filesystem, context.Context, string) (bool, error)) builtinMethod {
	return func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		return fn(fs, ctx, p)
	}
}

func twoPathMethod(fn func(*Filesystem, context.Context, string, string) (bool, error)) builtinMethod {
	return func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		from, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		to, err := StringArg(args, 1, "")
		if err != nil {
			return nil, err
		}
		return fn(fs, ctx, from, to)
	}
}

func contentsMethod(fn func(*Filesystem, context.Context, string, []byte, ...Option) (bool, error)) builtinMethod {
	return func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		contents, err := bytesArg(args, 1)
		if err != nil {
			return nil, err
		}
		opts, err := optionsArg(args, 2)
		if err != nil {
			return nil, err
		}
		return fn(fs, ctx, p, contents, opts...)
	}
}

func streamMethod(fn func(*Filesystem, context.Context, string, io.Reader, ...Option) (bool, error)) builtinMethod {
	return func(ctx context.Context, fs *Filesystem, args []any) (any, error) {
		p, err := StringArg(args, 0, "")
		if err != nil {
			return nil, err
		}
		r, err := readerArg(args, 1)
		if err != nil {
			return nil, err
		}
		opts, err := optionsArg(args, 2)
		if err != nil {
			return nil, err
		}
		return fn(fs, ctx, p, r, opts...)
	}
}
