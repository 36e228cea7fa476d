// Package fiddle persists the per-session script/style overlays that
// get injected into mirrored pages.
package fiddle

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned when no fiddle exists for a key.
var ErrNotFound = errors.New("fiddle: not found")

// ScriptLanguages and StyleLanguages are the accepted source
// languages for a fiddle's overlay code.
var (
	ScriptLanguages = map[string]string{"js": "js", "coffee": "coffee"}
	StyleLanguages  = map[string]string{"css": "css", "less": "less", "sass": "sass"}
)

// Fiddle is one named overlay: custom script and style applied to a
// mirrored site. The proxy treats it as an immutable per-request
// snapshot.
type Fiddle struct {
	ID             string
	Name           string
	Title          string
	Description    string
	StartURL       string
	Script         string
	Style          string
	ScriptLanguage string
	StyleLanguage  string
	Created        time.Time
	Updated        time.Time
}

// URLKey is the path segment identifying this fiddle, in slug-token
// form.
func (f *Fiddle) URLKey() string {
	if f.Title == "" {
		return f.ID
	}
	return slugify(f.Title) + "-" + f.ID
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// Store is a leveldb-backed fiddle repository.
type Store struct {
	db *leveldb.DB
}

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("fiddle: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put saves a fiddle, filling in a generated id and name when
// missing, and stamping Created/Updated.
func (s *Store) Put(f *Fiddle) error {
	if f.ID == "" {
		f.ID = uuid.NewString()[:8]
	}
	if f.Name == "" {
		f.Name = uuid.NewString()[:8]
	}
	now := time.Now()
	if f.Created.IsZero() {
		f.Created = now
	}
	f.Updated = now

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return fmt.Errorf("fiddle: encode %s: %w", f.ID, err)
	}
	if err := s.db.Put([]byte("fiddle_"+f.ID), buf.Bytes(), nil); err != nil {
		return fmt.Errorf("fiddle: write %s: %w", f.ID, err)
	}
	return nil
}

// ByID looks a fiddle up by its id.
func (s *Store) ByID(id string) (*Fiddle, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	raw, err := s.db.Get([]byte("fiddle_"+id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fiddle: read %s: %w", id, err)
	}
	var f Fiddle
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&f); err != nil {
		return nil, fmt.Errorf("fiddle: decode %s: %w", id, err)
	}
	return &f, nil
}

// ByURLKey resolves a slug-token key ("my-title-abc123" or just
// "abc123"): the token after the last separator is the id.
func (s *Store) ByURLKey(urlkey string) (*Fiddle, error) {
	if urlkey == "" {
		return nil, ErrNotFound
	}
	if i := strings.LastIndex(urlkey, "-"); i >= 0 {
		if f, err := s.ByID(urlkey[i+1:]); err == nil {
			return f, nil
		}
	}
	return s.ByID(urlkey)
}

// Default is the demo fiddle served on the landing page and used for
// ad-hoc "?url=" mirror requests.
func Default() *Fiddle {
	return &Fiddle{
		ID:          "d8c4vu",
		Title:       "cats",
		Description: "cats via the cat api",
		StartURL:    "www.google.com",
		Script: "// replace the first image we see with a cat\n" +
			"document.images[0].src = 'http://thecatapi.com/api/images/get?format=src&type=gif';\n",
		Style: "body {\n" +
			"    background-color: skyblue;\n" +
			"}\n",
		ScriptLanguage: "js",
		StyleLanguage:  "css",
	}
}
