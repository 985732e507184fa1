package recordsource

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// jsonSource streams top-level array elements out of one or more .json
// files without materializing the whole array in memory. A directory path
// is expanded into its .json files, visited in sorted order, so an
// ingestion can span a directory of exports as if it were one logical
// stream.
type jsonSource struct {
	files   []string
	idx     int
	f       *os.File
	dec     *jsoniter.Decoder
	started bool
}

func openJSON(path string) (Source, error) {
	files, err := discoverJSONFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("recordsource: no .json files found under %s", path)
	}
	return &jsonSource{files: files}, nil
}

func discoverJSONFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("recordsource: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".json") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recordsource: walk %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

func (s *jsonSource) Next() (Record, bool, error) {
	for {
		if s.dec == nil {
			if s.idx >= len(s.files) {
				return Record{}, false, nil
			}
			f, err := os.Open(s.files[s.idx])
			if err != nil {
				return Record{}, false, fmt.Errorf("recordsource: open %s: %w", s.files[s.idx], err)
			}
			s.f = f
			s.dec = jsoniter.NewDecoder(f)
			s.started = false
		}

		if !s.started {
			tok, err := s.dec.Token()
			if err != nil {
				return Record{}, false, fmt.Errorf("recordsource: %s: expected array, %w", s.files[s.idx], err)
			}
			delim, ok := tok.(jsoniter.Delim)
			if !ok || delim != '[' {
				return Record{}, false, fmt.Errorf("recordsource: %s: top-level JSON value must be an array", s.files[s.idx])
			}
			s.started = true
		}

		if !s.dec.More() {
			if _, err := s.dec.Token(); err != nil && err != io.EOF {
				return Record{}, false, fmt.Errorf("recordsource: %s: closing array token: %w", s.files[s.idx], err)
			}
			if err := s.f.Close(); err != nil {
				return Record{}, false, fmt.Errorf("recordsource: close %s: %w", s.files[s.idx], err)
			}
			s.f, s.dec = nil, nil
			s.idx++
			continue
		}

		rec, err := decodeOrderedObject(s.dec)
		if err != nil {
			return Record{}, false, fmt.Errorf("recordsource: %s: decode record: %w", s.files[s.idx], err)
		}
		return rec, true, nil
	}
}

func (s *jsonSource) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

// decodeOrderedObject reads one JSON object off dec, preserving the order
// its keys appeared in rather than the alphabetical order a plain
// map[string]any decode would impose on re-encoding.
func decodeOrderedObject(dec *jsoniter.Decoder) (Record, error) {
	tok, err := dec.Token()
	if err != nil {
		return Record{}, err
	}
	if delim, ok := tok.(jsoniter.Delim); !ok || delim != '{' {
		return Record{}, fmt.Errorf("expected object, got %v", tok)
	}

	var cols []string
	vals := make(map[string]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return Record{}, fmt.Errorf("expected string key, got %v", keyTok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return Record{}, fmt.Errorf("field %q: %w", key, err)
		}
		cols = append(cols, key)
		vals[key] = val
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return Record{}, err
	}
	return Record{Columns: cols, Values: vals}, nil
}
