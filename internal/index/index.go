// Package index reads and writes the workspace index: the on-disk record
// of which package owns which installed file, used by the ownership
// resolver (internal/ownership) to classify conflicts. It is flock-based
// exclusive locking plus atomic write-then-rename over a single YAML
// document, with a missing file treated as an empty index rather than
// an error.
package index

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/gofrs/flock"
)

// DefaultRelativePath is where the index lives under a workspace root.
const DefaultRelativePath = ".openpackage/openpackage.index.yml"

// FileTarget is one destination a source file within a package maps to.
// It marshals as a bare string when Merge is empty, and as
// {target, merge} otherwise, matching both the legacy and current forms
// the manifest's own dependency entries use.
type FileTarget struct {
	Target string
	Merge  string
}

// MarshalYAML implements goccy/go-yaml's BytesMarshaler so a target with
// no merge strategy round-trips as a bare string, matching the workspace
// index's on-disk shape.
func (f FileTarget) MarshalYAML() ([]byte, error) {
	if f.Merge == "" {
		return yaml.Marshal(f.Target)
	}
	return yaml.Marshal(map[string]string{"target": f.Target, "merge": f.Merge})
}

// UnmarshalYAML implements goccy/go-yaml's BytesUnmarshaler, accepting
// either a bare string or a {target, merge} map.
func (f *FileTarget) UnmarshalYAML(b []byte) error {
	var s string
	if err := yaml.Unmarshal(b, &s); err == nil && s != "" {
		f.Target = s
		f.Merge = ""
		return nil
	}
	var obj struct {
		Target string `yaml:"target"`
		Merge  string `yaml:"merge"`
	}
	if err := yaml.Unmarshal(b, &obj); err != nil {
		return err
	}
	f.Target = obj.Target
	f.Merge = obj.Merge
	return nil
}

// PackageEntry is one package's record in the index.
type PackageEntry struct {
	Path         string                  `yaml:"path"`
	Version      string                  `yaml:"version,omitempty"`
	Dependencies []string                `yaml:"dependencies,omitempty"`
	Files        map[string][]FileTarget `yaml:"files"`
}

// Document is the on-disk shape of the workspace index.
type Document struct {
	Packages map[string]*PackageEntry `yaml:"packages"`
}

// ReadResult is the read contract's {path, index} pair.
type ReadResult struct {
	Path  string
	Index *Document
}

// Index wraps one workspace index file with flock-based exclusive locking
// through a Lock/Load/Save/Unlock lifecycle over a single fixed document
// type.
type Index struct {
	path     string
	lockPath string
	fileLock *flock.Flock
	locked   bool
}

// New creates an Index rooted at workspaceRoot/DefaultRelativePath.
func New(workspaceRoot string) *Index {
	path := filepath.Join(workspaceRoot, DefaultRelativePath)
	return &Index{
		path:     path,
		lockPath: path + ".lock",
		fileLock: flock.New(path + ".lock"),
	}
}

// Lock acquires an exclusive lock, writing the current PID to the lock
// file so a contending process can report who holds it.
func (idx *Index) Lock() error {
	if idx.locked {
		return nil
	}
	locked, err := idx.fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !locked {
		pid, _ := idx.readLockPID()
		if pid > 0 {
			return fmt.Errorf("another openpackage process (PID %d) is using the workspace index", pid)
		}
		return fmt.Errorf("another openpackage process is using the workspace index")
	}
	if err := idx.writeLockPID(); err != nil {
		_ = idx.fileLock.Unlock()
		return fmt.Errorf("failed to write index lock PID: %w", err)
	}
	idx.locked = true
	return nil
}

// Unlock releases the lock acquired by Lock.
func (idx *Index) Unlock() error {
	if !idx.locked {
		return nil
	}
	if err := idx.fileLock.Unlock(); err != nil {
		return fmt.Errorf("failed to release index lock: %w", err)
	}
	idx.locked = false
	return nil
}

// Load reads the index under the read contract: a missing file is a
// non-fatal warning yielding an empty document, legacy keys are migrated,
// and every package's Files map is guaranteed non-nil.
func (idx *Index) Load() (*ReadResult, error) {
	data, err := os.ReadFile(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("workspace index not found, starting empty", "path", idx.path)
			return &ReadResult{Path: idx.path, Index: &Document{Packages: map[string]*PackageEntry{}}}, nil
		}
		return nil, fmt.Errorf("failed to read workspace index: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse workspace index: %w", err)
	}
	if doc.Packages == nil {
		doc.Packages = map[string]*PackageEntry{}
	}

	migrateLegacyKeys(&doc)

	for _, entry := range doc.Packages {
		if entry.Files == nil {
			entry.Files = map[string][]FileTarget{}
		}
	}

	return &ReadResult{Path: idx.path, Index: &doc}, nil
}

// Save writes doc atomically: write to a sibling .tmp file, then rename
// over the real path, creating the parent directory first if needed.
func (idx *Index) Save(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return fmt.Errorf("failed to create workspace index directory: %w", err)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal workspace index: %w", err)
	}

	tmpPath := idx.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp workspace index: %w", err)
	}
	if err := os.Rename(tmpPath, idx.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename workspace index into place: %w", err)
	}
	return nil
}

// Path returns the index file's path.
func (idx *Index) Path() string { return idx.path }

// migrateLegacyKeys rewrites the deprecated "git:<url>" sourceKey prefix
// used by earlier index generations into "url:<url>", matching the
// manifest's own git -> url field migration. Migration happens purely in
// memory; the new form is what gets written back on the next Save.
func migrateLegacyKeys(doc *Document) {
	for _, entry := range doc.Packages {
		if entry.Files == nil {
			continue
		}
		migrated := make(map[string][]FileTarget, len(entry.Files))
		for key, targets := range entry.Files {
			migrated[migrateKey(key)] = targets
		}
		entry.Files = migrated
	}
}

func migrateKey(key string) string {
	if strings.HasPrefix(key, "git:") {
		return "url:" + strings.TrimPrefix(key, "git:")
	}
	return key
}

func (idx *Index) readLockPID() (int, error) {
	data, err := os.ReadFile(idx.lockPath)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

func (idx *Index) writeLockPID() error {
	return os.WriteFile(idx.lockPath, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// SortedPackageNames returns doc's package names in lexical order, for
// deterministic iteration when printing or diffing.
func SortedPackageNames(doc *Document) []string {
	names := make([]string, 0, len(doc.Packages))
	for name := range doc.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
