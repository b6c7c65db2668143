/*
Engine configuration.

Every knob of the storage core is enumerated here with a default, so embedding
code can construct a Cfg directly. Load reads the knobs shown in the example
below from an ini file for deployments that want a config file; the background
writer knobs are not read from the file. There is no environment variable or
command line surface.

example minibase.ini:

	[buffer]
	pool_size   = 256
	replacer_k  = 2

	[hash]
	header_max_depth    = 9
	directory_max_depth = 9
	bucket_max_size     = 0

	[storage]
	data_dir = data

	[log]
	level = info
*/
package conf

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/hmachida/minibase/storage/buffer"
	"github.com/hmachida/minibase/storage/disk"
	"github.com/hmachida/minibase/storage/hash"
)

// Cfg holds the storage engine configuration
type Cfg struct {
	// DataDir is the directory holding the database file
	DataDir string

	// PoolSize is the number of buffer pool frames
	PoolSize int
	// ReplacerK is the K of the LRU-K eviction policy
	ReplacerK int

	// HeaderMaxDepth is the hash index header fan-out depth
	HeaderMaxDepth uint32
	// DirectoryMaxDepth bounds each hash directory's global depth
	DirectoryMaxDepth uint32
	// BucketMaxSize caps entries per hash bucket. 0 means as many as fit a page.
	BucketMaxSize uint32

	// BgWriterDelay is the background writer round interval.
	// Open does not start a background writer; neither Load nor Open reads
	// this field or BgWriterMaxPages.
	BgWriterDelay time.Duration
	// BgWriterMaxPages bounds pages written per background round
	BgWriterMaxPages int

	// LogLevel is a logrus level name (debug, info, warn, error)
	LogLevel string
}

// Default returns the default configuration
func Default() *Cfg {
	return &Cfg{
		DataDir:           "data",
		PoolSize:          256,
		ReplacerK:         2,
		HeaderMaxDepth:    hash.HeaderMaxDepth,
		DirectoryMaxDepth: hash.DirectoryMaxDepth,
		BucketMaxSize:     0,
		BgWriterDelay:     200 * time.Millisecond,
		BgWriterMaxPages:  100,
		LogLevel:          "info",
	}
}

// Load reads the ini file at path over the defaults
func Load(path string) (*Cfg, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "ini.Load failed")
	}
	cfg := Default()

	buf := file.Section("buffer")
	if key, err := buf.GetKey("pool_size"); err == nil {
		if cfg.PoolSize, err = key.Int(); err != nil {
			return nil, errors.Wrap(err, "pool_size")
		}
	}
	if key, err := buf.GetKey("replacer_k"); err == nil {
		if cfg.ReplacerK, err = key.Int(); err != nil {
			return nil, errors.Wrap(err, "replacer_k")
		}
	}

	hs := file.Section("hash")
	if key, err := hs.GetKey("header_max_depth"); err == nil {
		v, err := key.Uint()
		if err != nil {
			return nil, errors.Wrap(err, "header_max_depth")
		}
		cfg.HeaderMaxDepth = uint32(v)
	}
	if key, err := hs.GetKey("directory_max_depth"); err == nil {
		v, err := key.Uint()
		if err != nil {
			return nil, errors.Wrap(err, "directory_max_depth")
		}
		cfg.DirectoryMaxDepth = uint32(v)
	}
	if key, err := hs.GetKey("bucket_max_size"); err == nil {
		v, err := key.Uint()
		if err != nil {
			return nil, errors.Wrap(err, "bucket_max_size")
		}
		cfg.BucketMaxSize = uint32(v)
	}

	st := file.Section("storage")
	if key, err := st.GetKey("data_dir"); err == nil {
		cfg.DataDir = key.String()
	}

	lg := file.Section("log")
	if key, err := lg.GetKey("level"); err == nil {
		cfg.LogLevel = key.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// Validate checks the configuration bounds
func (c *Cfg) Validate() error {
	if c.PoolSize <= 0 {
		return errors.Errorf("pool_size must be positive, got %d", c.PoolSize)
	}
	if c.ReplacerK < 1 {
		return errors.Errorf("replacer_k must be at least 1, got %d", c.ReplacerK)
	}
	if c.HeaderMaxDepth > hash.HeaderMaxDepth {
		return errors.Errorf("header_max_depth %d above limit %d", c.HeaderMaxDepth, hash.HeaderMaxDepth)
	}
	if c.DirectoryMaxDepth > hash.DirectoryMaxDepth {
		return errors.Errorf("directory_max_depth %d above limit %d", c.DirectoryMaxDepth, hash.DirectoryMaxDepth)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "log level %q", c.LogLevel)
	}
	return nil
}

// ApplyLogLevel sets the process-wide logrus level from the configuration
func (c *Cfg) ApplyLogLevel() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "log level %q", c.LogLevel)
	}
	logrus.SetLevel(level)
	return nil
}

// Open opens the database file and the buffer pool described by the
// configuration. The caller owns both and closes the pool before the file.
func (c *Cfg) Open() (*disk.Manager, *buffer.Manager, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	dm, err := disk.NewManager(c.DataDir)
	if err != nil {
		return nil, nil, errors.Wrap(err, "disk.NewManager failed")
	}
	bm, err := buffer.NewManager(dm, c.PoolSize, c.ReplacerK)
	if err != nil {
		dm.Close()
		return nil, nil, errors.Wrap(err, "buffer.NewManager failed")
	}
	return dm, bm, nil
}

// HashConfig builds the hash index configuration for the given key/value widths
func (c *Cfg) HashConfig(keySize, valueSize int) hash.Config {
	return hash.Config{
		KeySize:           keySize,
		ValueSize:         valueSize,
		HeaderMaxDepth:    c.HeaderMaxDepth,
		DirectoryMaxDepth: c.DirectoryMaxDepth,
		BucketMaxSize:     c.BucketMaxSize,
	}
}
