package vfskit

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/gobeaver/vfskit"

// SetupTracing installs a global TracerProvider for the given exporter
// ("stdout", "noop" or "") and returns its shutdown function.
func SetupTracing(ctx context.Context, exporter string) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	switch exporter {
	case "noop", "":
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	default:
		return nil, fmt.Errorf("%w: unsupported trace exporter: %s", ErrInvalidConfig, exporter)
	}
}

// TracedAdapter records one span per adapter call, named "vfskit.<op>",
// carrying the path and the backend error if any.
type TracedAdapter struct {
	AdapterWrapper
	tracer  trace.Tracer
	backend string
}

// TracingOption configures a TracedAdapter.
type TracingOption func(*TracedAdapter)

// WithTracerProvider uses tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(t *TracedAdapter) {
		t.tracer = tp.Tracer(tracerName)
	}
}

// WithBackendName adds a vfskit.backend attribute to every span.
func WithBackendName(name string) TracingOption {
	return func(t *TracedAdapter) {
		t.backend = name
	}
}

// NewTraced wraps adapter with tracing.
func NewTraced(adapter Adapter, opts ...TracingOption) *TracedAdapter {
	t := &TracedAdapter{
		AdapterWrapper: AdapterWrapper{Adapter: adapter},
		tracer:         otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TracedAdapter) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t.backend != "" {
		attrs = append(attrs, attribute.String("vfskit.backend", t.backend))
	}
	return t.tracer.Start(ctx, "vfskit."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String("vfskit.path", path)
}

func (t *TracedAdapter) Has(ctx context.Context, path string) (bool, error) {
	ctx, span := t.start(ctx, "has", pathAttr(path))
	ok, err := t.Adapter.Has(ctx, path)
	span.SetAttributes(attribute.Bool("vfskit.exists", ok))
	finish(span, err)
	return ok, err
}

func (t *TracedAdapter) Read(ctx context.Context, path string) (*Object, error) {
	ctx, span := t.start(ctx, "read", pathAttr(path))
	obj, err := t.Adapter.Read(ctx, path)
	if obj != nil {
		span.SetAttributes(attribute.Int("vfskit.size", len(obj.Contents)))
	}
	finish(span, err)
	return obj, err
}

func (t *TracedAdapter) ReadStream(ctx context.Context, path string) (*Object, error) {
	ctx, span := t.start(ctx, "readstream", pathAttr(path))
	obj, err := t.Adapter.ReadStream(ctx, path)
	finish(span, err)
	return obj, err
}

func (t *TracedAdapter) ListContents(ctx context.Context, directory string, recursive bool) ([]Metadata, error) {
	ctx, span := t.start(ctx, "listcontents", pathAttr(directory), attribute.Bool("vfskit.recursive", recursive))
	listing, err := t.Adapter.ListContents(ctx, directory, recursive)
	span.SetAttributes(attribute.Int("vfskit.entries", len(listing)))
	finish(span, err)
	return listing, err
}

func (t *TracedAdapter) meta(ctx context.Context, op, path string, fn func(context.Context) (*Metadata, error)) (*Metadata, error) {
	ctx, span := t.start(ctx, op, pathAttr(path))
	m, err := fn(ctx)
	finish(span, err)
	return m, err
}

func (t *TracedAdapter) GetMetadata(ctx context.Context, path string) (*Metadata, error) {
	return t.meta(ctx, "getmetadata", path, func(ctx context.Context) (*Metadata, error) {
		return t.Adapter.GetMetadata(ctx, path)
	})
}

func (t *TracedAdapter) GetSize(ctx context.Context, path string) (*Metadata, error) {
	return t.meta(ctx, "getsize", path, func(ctx context.Context) (*Metadata, error) {
		return t.Adapter.GetSize(ctx, path)
	})
}

func (t *TracedAdapter) GetMimetype(ctx context.Context, path string) (*Metadata, error) {
	return t.meta(ctx, "getmimetype", path, func(ctx context.Context) (*Metadata, error) {
		return t.Adapter.GetMimetype(ctx, path)
	})
}

func (t *TracedAdapter) GetTimestamp(ctx context.Context, path string) (*Metadata, error) {
	return t.meta(ctx, "gettimestamp", path, func(ctx context.Context) (*Metadata, error) {
		return t.Adapter.GetTimestamp(ctx, path)
	})
}

func (t *TracedAdapter) GetVisibility(ctx context.Context, path string) (*Metadata, error) {
	return t.meta(ctx, "getvisibility", path, func(ctx context.Context) (*Metadata, error) {
		return t.Adapter.GetVisibility(ctx, path)
	})
}

func (t *TracedAdapter) Write(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	ctx, span := t.start(ctx, "write", pathAttr(path), attribute.Int("vfskit.size", len(contents)))
	m, err := t.Adapter.Write(ctx, path, contents, cfg)
	finish(span, err)
	return m, err
}

func (t *TracedAdapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	return t.meta(ctx, "writestream", path, func(ctx context.Context) (*Metadata, error) {
		return t.Adapter.WriteStream(ctx, path, r, cfg)
	})
}

func (t *TracedAdapter) Update(ctx context.Context, path string, contents []byte, cfg *Config) (*Metadata, error) {
	ctx, span := t.start(ctx, "update", pathAttr(path), attribute.Int("vfskit.size", len(contents)))
	m, err := t.Adapter.Update(ctx, path, contents, cfg)
	finish(span, err)
	return m, err
}

func (t *TracedAdapter) UpdateStream(ctx context.Context, path string, r io.Reader, cfg *Config) (*Metadata, error) {
	return t.meta(ctx, "updatestream", path, func(ctx context.Context) (*Metadata, error) {
		return t.Adapter.UpdateStream(ctx, path, r, cfg)
	})
}

func (t *TracedAdapter) Rename(ctx context.Context, path, newpath string) error {
	ctx, span := t.start(ctx, "rename", pathAttr(path), attribute.String("vfskit.newpath", newpath))
	err := t.Adapter.Rename(ctx, path, newpath)
	finish(span, err)
	return err
}

func (t *TracedAdapter) Copy(ctx context.Context, path, newpath string) error {
	ctx, span := t.start(ctx, "copy", pathAttr(path), attribute.String("vfskit.newpath", newpath))
	err := t.Adapter.Copy(ctx, path, newpath)
	finish(span, err)
	return err
}

func (t *TracedAdapter) Delete(ctx context.Context, path string) error {
	ctx, span := t.start(ctx, "delete", pathAttr(path))
	err := t.Adapter.Delete(ctx, path)
	finish(span, err)
	return err
}

func (t *TracedAdapter) DeleteDir(ctx context.Context, dirname string) error {
	ctx, span := t.start(ctx, "deletedir", pathAttr(dirname))
	err := t.Adapter.DeleteDir(ctx, dirname)
	finish(span, err)
	return err
}

func (t *TracedAdapter) CreateDir(ctx context.Context, dirname string, cfg *Config) (*Metadata, error) {
	return t.meta(ctx, "createdir", dirname, func(ctx context.Context) (*Metadata, error) {
		return t.Adapter.CreateDir(ctx, dirname, cfg)
	})
}

func (t *TracedAdapter) SetVisibility(ctx context.Context, path string, visibility Visibility) (*Metadata, error) {
	ctx, span := t.start(ctx, "setvisibility", pathAttr(path), attribute.String("vfskit.visibility", string(visibility)))
	m, err := t.Adapter.SetVisibility(ctx, path, visibility)
	finish(span, err)
	return m, err
}

var _ Adapter = (*TracedAdapter)(nil)
