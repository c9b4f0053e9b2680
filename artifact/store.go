package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/katalvlaran/fngen/codegen"
)

// Entry is a loaded, verified cache entry.
type Entry struct {
	Manifest Manifest
	Program  *codegen.Program
	Dir      string
}

// Store is a directory of published entries. A Store holds no in-memory
// state besides its configuration and is safe for concurrent use.
type Store struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger for store diagnostics. Panics on nil.
func WithStoreLogger(l *slog.Logger) StoreOption {
	if l == nil {
		panic("artifact: WithStoreLogger(nil)")
	}
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source used for CreatedAt. Panics on nil.
func WithClock(now func() time.Time) StoreOption {
	if now == nil {
		panic("artifact: WithClock(nil)")
	}
	return func(s *Store) { s.now = now }
}

// NewStore opens (creating if needed) the store rooted at root.
func NewStore(root string, opts ...StoreOption) (*Store, error) {
	if root == "" {
		return nil, errors.New("artifact: empty store root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}
	s := &Store{
		root:   root,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

func (s *Store) dir(name string) string { return filepath.Join(s.root, name) }

// Stat reads the manifest of name without loading or verifying the program.
func (s *Store) Stat(name string) (*Manifest, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("Stat: %w", err)
	}
	m, err := s.readManifest(name)
	if err != nil {
		return nil, fmt.Errorf("Stat(%s): %w", name, err)
	}
	return m, nil
}

func (s *Store) readManifest(name string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(name), manifestFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// Published directories always carry a manifest; one without is
		// debris from an interrupted removal and still blocks Publish.
		if _, statErr := os.Stat(s.dir(name)); statErr == nil {
			return nil, fmt.Errorf("manifest missing: %w", ErrCorrupt)
		}
		return nil, ErrNotFound
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %v: %w", err, ErrCorrupt)
	}
	if m.Name != name || m.Format != codegen.FormatVersion {
		return nil, fmt.Errorf("manifest names %q format %d: %w", m.Name, m.Format, ErrCorrupt)
	}
	return &m, nil
}

// Load reads and verifies the entry published under name.
//
// Errors:
//   - ErrNotFound if there is no entry;
//   - ErrSignatureMismatch if the entry was compiled for a different signature;
//   - ErrCorrupt if the manifest, checksum or program does not check out.
func (s *Store) Load(ctx context.Context, name string, want Signature) (*Entry, error) {
	return s.load(ctx, name, &want)
}

// Open is Load without the signature check, for tools that inspect the cache.
func (s *Store) Open(ctx context.Context, name string) (*Entry, error) {
	return s.load(ctx, name, nil)
}

func (s *Store) load(ctx context.Context, name string, want *Signature) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	m, err := s.readManifest(name)
	if err != nil {
		return nil, fmt.Errorf("Load(%s): %w", name, err)
	}
	if want != nil && !m.Signature.Equal(*want) {
		return nil, fmt.Errorf("Load(%s): cached %s, requested %s: %w", name, m.Signature, *want, ErrSignatureMismatch)
	}

	dir := s.dir(name)
	data, err := os.ReadFile(filepath.Join(dir, programFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("Load(%s): program missing: %w", name, ErrCorrupt)
		}
		return nil, fmt.Errorf("Load(%s): %w", name, err)
	}
	if sum := checksum(data); sum != m.Checksum {
		return nil, fmt.Errorf("Load(%s): checksum %s, manifest %s: %w", name, sum, m.Checksum, ErrCorrupt)
	}
	p, err := codegen.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("Load(%s): %v: %w", name, err, ErrCorrupt)
	}
	if err := m.consistent(p); err != nil {
		return nil, fmt.Errorf("Load(%s): %v: %w", name, err, ErrCorrupt)
	}
	s.logger.Debug("artifact loaded", "name", name, "build_id", m.BuildID)
	return &Entry{Manifest: *m, Program: p, Dir: dir}, nil
}

// Publish writes p (and its Go source) under name.
//
// The entry is assembled in a temp directory next to its final location and
// renamed into place. If another publisher got there first, Publish does not
// overwrite: it loads the existing entry with the same signature check as
// Load and reports published=false.
func (s *Store) Publish(ctx context.Context, name string, sig Signature, p *codegen.Program, source []byte) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := ValidateName(name); err != nil {
		return nil, false, fmt.Errorf("Publish: %w", err)
	}
	data, err := codegen.Marshal(p)
	if err != nil {
		return nil, false, fmt.Errorf("Publish(%s): %w", name, err)
	}
	m := Manifest{
		Format:       codegen.FormatVersion,
		Name:         name,
		Signature:    sig,
		OutputSize:   p.OutputSize,
		Checksum:     checksum(data),
		BuildID:      uuid.NewString(),
		CreatedAt:    s.now().UTC().Truncate(time.Second),
		Generator:    Generator,
		Instructions: p.Instructions(),
	}
	if err := m.consistent(p); err != nil {
		return nil, false, fmt.Errorf("Publish(%s): %v: %w", name, err, ErrSignatureMismatch)
	}
	manifest, err := yaml.Marshal(&m)
	if err != nil {
		return nil, false, fmt.Errorf("Publish(%s): manifest: %w", name, err)
	}

	tmp := filepath.Join(s.root, tmpPrefix+name+"-"+uuid.NewString())
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return nil, false, fmt.Errorf("Publish(%s): %w", name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	// The manifest goes last: a directory without one is never a valid entry.
	for _, f := range []struct {
		name string
		data []byte
	}{
		{programFile, data},
		{sourceFile, source},
		{manifestFile, manifest},
	} {
		if err := os.WriteFile(filepath.Join(tmp, f.name), f.data, 0o644); err != nil {
			return nil, false, fmt.Errorf("Publish(%s): %w", name, err)
		}
	}

	if err := os.Rename(tmp, s.dir(name)); err != nil {
		if _, statErr := os.Stat(s.dir(name)); statErr != nil {
			return nil, false, fmt.Errorf("Publish(%s): %w", name, err)
		}
		s.logger.Debug("artifact publish lost race", "name", name)
		winner, err := s.Load(ctx, name, sig)
		if err != nil {
			return nil, false, err
		}
		return winner, false, nil
	}
	committed = true
	s.logger.Debug("artifact published", "name", name, "build_id", m.BuildID, "checksum", m.Checksum)
	return &Entry{Manifest: m, Program: p, Dir: s.dir(name)}, true, nil
}

// Source returns the generated Go source stored with name.
func (s *Store) Source(name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("Source: %w", err)
	}
	b, err := os.ReadFile(filepath.Join(s.dir(name), sourceFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("Source(%s): %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("Source(%s): %w", name, err)
	}
	return b, nil
}

// List returns the manifests of all readable entries, sorted by name.
// Unreadable entries are logged and skipped.
func (s *Store) List(ctx context.Context) ([]Manifest, error) {
	des, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	var out []Manifest
	for _, de := range des {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !de.IsDir() || strings.HasPrefix(de.Name(), tmpPrefix) || ValidateName(de.Name()) != nil {
			continue
		}
		m, err := s.readManifest(de.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable artifact", "name", de.Name(), "error", err)
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Remove deletes the entry published under name.
func (s *Store) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	dir := s.dir(name)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("Remove(%s): %w", name, ErrNotFound)
		}
		return fmt.Errorf("Remove(%s): %w", name, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("Remove(%s): %w", name, err)
	}
	s.logger.Debug("artifact removed", "name", name)
	return nil
}

// Purge deletes every entry and every leftover temp directory, returning the
// number of entries removed.
func (s *Store) Purge() (int, error) {
	des, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("Purge: %w", err)
	}
	n := 0
	for _, de := range des {
		tmp := strings.HasPrefix(de.Name(), tmpPrefix)
		if !de.IsDir() || (!tmp && ValidateName(de.Name()) != nil) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, de.Name())); err != nil {
			return n, fmt.Errorf("Purge: %w", err)
		}
		if !tmp {
			n++
		}
	}
	return n, nil
}

func checksum(b []byte) string { return fmt.Sprintf("%016x", xxhash.Sum64(b)) }
