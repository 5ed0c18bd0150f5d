// Package storage persists uploaded answer files and template documents on
// the local filesystem under a single root directory.
//
// Clients send files as base64 data URLs ("data:<mime>;base64,<payload>").
// Stored files are addressed by a slash-separated path relative to the root
// ("<folder>/<name>-<unix ms>.<ext>"), which is what the database keeps.
package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// TemplateFolder is the folder template documents are stored under.
const TemplateFolder = "templateFiles"

var (
	ErrInvalidDataURL = errors.New("invalid data url")
	ErrOutsideRoot    = errors.New("path escapes storage root")
	ErrEmptyPath      = errors.New("empty file path")
)

var dataURLRe = regexp.MustCompile(`^data:([^;,]*);base64,(.*)$`)

// Store writes and removes files below Root.
type Store struct {
	Root string

	now func() time.Time
}

// New creates root when missing and returns a Store over it.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Store{Root: abs, now: time.Now}, nil
}

// Blob is a decoded upload.
type Blob struct {
	Data     []byte
	MimeType string // declared by the client, sniffed when empty
}

// Size returns the decoded length in bytes.
func (b Blob) Size() int64 { return int64(len(b.Data)) }

// DecodeDataURL parses a base64 data URL. The declared mime type is kept;
// an empty declaration is replaced by the sniffed type.
func DecodeDataURL(s string) (Blob, error) {
	m := dataURLRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Blob{}, ErrInvalidDataURL
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	mt := strings.TrimSpace(m[1])
	if mt == "" {
		mt = mimetype.Detect(data).String()
	}
	return Blob{Data: data, MimeType: mt}, nil
}

// IsDataURL reports whether s looks like a base64 data URL.
func IsDataURL(s string) bool {
	return dataURLRe.MatchString(strings.TrimSpace(s))
}

// Extension returns the file extension (without dot) registered for a mime
// type, or "unknown".
func Extension(mimeType string) string {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	if m := mimetype.Lookup(base); m != nil && m.Extension() != "" {
		return strings.TrimPrefix(m.Extension(), ".")
	}
	return "unknown"
}

// Save writes blob as "<slug(folder)>/<slug(name)>-<unix ms>.<ext>" and
// returns that relative path. The extension comes from the original name,
// then from the mime type, then from content sniffing.
func (s *Store) Save(folder, name string, blob Blob) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		ext = Extension(blob.MimeType)
	}
	if ext == "unknown" {
		ext = strings.TrimPrefix(mimetype.Detect(blob.Data).Extension(), ".")
	}
	base := Slug(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "file"
	}
	dir := Slug(folder)
	if folder == TemplateFolder {
		dir = TemplateFolder
	}
	if dir == "" {
		dir = "misc"
	}

	file := fmt.Sprintf("%s-%d", base, s.now().UnixMilli())
	if ext != "" {
		file += "." + ext
	}
	rel := path.Join(dir, file)

	abs, err := s.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, blob.Data, 0o644); err != nil {
		return "", err
	}
	return rel, nil
}

// Resolve maps a stored relative path to an absolute path below Root,
// rejecting anything that would escape it.
func (s *Store) Resolve(rel string) (string, error) {
	rel = strings.ReplaceAll(strings.TrimSpace(rel), "\\", "/")
	if rel == "" {
		return "", ErrEmptyPath
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", ErrOutsideRoot
		}
	}
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", ErrEmptyPath
	}
	abs := filepath.Join(s.Root, filepath.FromSlash(clean))
	inside, err := filepath.Rel(s.Root, abs)
	if err != nil || inside == "." || strings.HasPrefix(inside, "..") {
		return "", ErrOutsideRoot
	}
	return abs, nil
}

// Remove deletes a stored file, then every parent directory left empty up to
// (not including) Root. A missing file is not an error.
func (s *Store) Remove(rel string) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for dir := filepath.Dir(abs); dir != s.Root && strings.HasPrefix(dir, s.Root); dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// Open opens a stored file for reading and sniffs its mime type.
func (s *Store) Open(rel string) (*os.File, string, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return nil, "", err
	}
	mt, err := mimetype.DetectFile(abs)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, "", err
	}
	return f, mt.String(), nil
}

// SameType reports whether two mime types share the same base type,
// ignoring parameters and case.
func SameType(a, b string) bool {
	norm := func(s string) string {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(s, ";", 2)[0]))
	}
	return norm(a) == norm(b)
}
