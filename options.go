package docdb

import (
	"os"
	"path/filepath"

	"github.com/hupe1980/docdb/codec"
)

// Backend selects the document storage implementation. The set is closed;
// an unknown value is rejected at construction time.
type Backend string

const (
	// BackendFile stores one file per document under a data directory.
	BackendFile Backend = "file"

	// BackendBadger stores documents in an embedded BadgerDB key-value store.
	BackendBadger Backend = "badger"
)

// ParseBackend resolves a backend tag, e.g. from a config file.
func ParseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case BackendFile, BackendBadger:
		return Backend(name), nil
	default:
		return "", &ErrUnknownBackend{Name: name}
	}
}

// Strategy selects the vector index implementation, engine-wide. The set is
// closed; an unknown value is rejected at construction time.
type Strategy string

const (
	// StrategyBrute scores every vector per query. Exact, O(n).
	StrategyBrute Strategy = "brute"

	// StrategyFlat pre-normalizes vectors at insert for dot-product
	// queries. Exact, O(n), cheaper per comparison than brute.
	StrategyFlat Strategy = "flat"

	// StrategyCover indexes vectors in a cover tree. Approximate,
	// rebuilt on the first search after a mutation.
	StrategyCover Strategy = "cover"
)

// ParseStrategy resolves a strategy tag, e.g. from a config file.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyBrute, StrategyFlat, StrategyCover:
		return Strategy(name), nil
	default:
		return "", &ErrUnknownStrategy{Name: name}
	}
}

type options struct {
	path        string
	backend     Backend
	strategy    Strategy
	codec       codec.Codec
	compression bool
	inMemory    bool
	dimensions  map[string]int
	logger      *Logger
}

// Option configures Open behavior.
type Option func(*options)

// WithPath sets the data directory. Defaults to $XDG_DATA_HOME/docdb
// (or ~/.local/share/docdb).
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithBackend selects the storage backend. Defaults to BackendFile.
func WithBackend(backend Backend) Option {
	return func(o *options) {
		o.backend = backend
	}
}

// WithStrategy selects the vector index strategy. Defaults to StrategyBrute.
func WithStrategy(strategy Strategy) Option {
	return func(o *options) {
		o.strategy = strategy
	}
}

// WithCodec configures the codec used for stored documents, index entries
// and metadata.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression wraps the configured codec in zstd compression.
// Meaningful for large documents; index entries pay the overhead too.
func WithCompression() Option {
	return func(o *options) {
		o.compression = true
	}
}

// WithInMemory keeps the badger backend entirely in memory. Ignored by the
// file backend. Useful for tests.
func WithInMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithDimensions pins the dimensionality of a vector collection up front,
// so the first Add cannot silently establish a wrong one.
func WithDimensions(collection string, dim int) Option {
	return func(o *options) {
		if o.dimensions == nil {
			o.dimensions = make(map[string]int)
		}
		o.dimensions[collection] = dim
	}
}

// WithLogger configures structured logging.
//
// If nil is passed, the no-op logger is used.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

func defaultOptions() options {
	return options{
		path:     defaultPath(),
		backend:  BackendFile,
		strategy: StrategyBrute,
		codec:    codec.Default,
		logger:   NoopLogger(),
	}
}

func defaultPath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "docdb")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "docdb_data"
	}
	return filepath.Join(home, ".local", "share", "docdb")
}
