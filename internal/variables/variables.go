// Package variables persists the operator's last-used job parameters as a
// small key: value file so the front end can prefill them.
package variables

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/ini.v1"

	"pidish/internal/logging"
)

// ErrInvalidValue is returned when a value does not match its key's format.
var ErrInvalidValue = errors.New("invalid variable value")

// Kind is the numeric format of a variable.
type Kind int

const (
	Int Kind = iota
	Float
)

var formats = map[Kind]*regexp.Regexp{
	Int:   regexp.MustCompile(`^[0-9]+$`),
	Float: regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`),
}

// Definition names one persisted variable.
type Definition struct {
	Key     string
	Kind    Kind
	Default float64
}

// Definitions lists every persisted variable.
var Definitions = []Definition{
	{Key: "lift_speed", Kind: Int, Default: 5280},
	{Key: "lift_amount", Kind: Int, Default: 25400},
	{Key: "cali_min_time", Kind: Float, Default: 6.0},
	{Key: "cali_max_time", Kind: Float, Default: 17.0},
	{Key: "exposure_time", Kind: Float, Default: 13.0},
}

func lookup(key string) (Definition, bool) {
	for _, d := range Definitions {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Store holds the current values and the file they live in.
type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	values map[string]float64
}

// Open loads path, falling back to defaults for missing or invalid entries.
// A missing file is not an error.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		path:   path,
		logger: logging.NewComponentLogger(logger, "variables"),
		values: make(map[string]float64, len(Definitions)),
	}
	for _, d := range Definitions {
		s.values[d.Key] = d.Default
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read variables %s: %w", path, err)
	}
	file, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:  ":=",
		IgnoreInlineComment: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("parse variables %s: %w", path, err)
	}
	section := file.Section(ini.DefaultSection)
	for _, d := range Definitions {
		if !section.HasKey(d.Key) {
			continue
		}
		raw := section.Key(d.Key).String()
		v, err := parse(d, raw)
		if err != nil {
			logging.WarnWithContext(s.logger, "ignoring stored variable", "variable_invalid",
				logging.String("key", d.Key),
				logging.String("value", raw),
				logging.String(logging.FieldImpact, "default value used"),
			)
			continue
		}
		s.values[d.Key] = v
	}
	return s, nil
}

func parse(d Definition, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if !formats[d.Kind].MatchString(raw) {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, d.Key, raw)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, d.Key, raw)
	}
	return v, nil
}

func format(d Definition, v float64) string {
	if d.Kind == Int {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the current value of key.
func (s *Store) Get(key string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Values returns every variable formatted for the wire.
func (s *Store) Values() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for _, d := range Definitions {
		out[d.Key] = format(d, s.values[d.Key])
	}
	return out
}

// Keys returns the variable names in a stable order.
func Keys() []string {
	keys := make([]string, 0, len(Definitions))
	for _, d := range Definitions {
		keys = append(keys, d.Key)
	}
	sort.Strings(keys)
	return keys
}

// Fill returns a copy of wire with any of keys that wire lacks taken from
// the store.
func (s *Store) Fill(wire map[string]string, keys ...string) map[string]string {
	out := make(map[string]string, len(wire)+len(keys))
	for k, v := range wire {
		out[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if _, ok := out[key]; ok {
			continue
		}
		d, ok := lookup(key)
		if !ok {
			continue
		}
		out[key] = format(d, s.values[key])
	}
	return out
}

// Check validates every variable present in wire without storing anything.
func Check(wire map[string]string) error {
	var errs []error
	for _, d := range Definitions {
		raw, ok := wire[d.Key]
		if !ok {
			continue
		}
		if _, err := parse(d, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Update stores every variable present in wire and saves the file. Nothing
// is changed if any value is invalid.
func (s *Store) Update(wire map[string]string) error {
	if err := Check(wire); err != nil {
		return err
	}
	s.mu.Lock()
	changed := false
	for _, d := range Definitions {
		raw, ok := wire[d.Key]
		if !ok {
			continue
		}
		v, _ := parse(d, raw)
		if s.values[d.Key] != v {
			s.values[d.Key] = v
			changed = true
		}
	}
	s.mu.Unlock()
	if !changed {
		return nil
	}
	return s.Save()
}

// Save writes the current values atomically.
func (s *Store) Save() error {
	values := s.Values()
	file := ini.Empty(ini.LoadOptions{KeyValueDelimiterOnWrite: ":"})
	section := file.Section(ini.DefaultSection)
	for _, d := range Definitions {
		if _, err := section.NewKey(d.Key, values[d.Key]); err != nil {
			return fmt.Errorf("encode variable %s: %w", d.Key, err)
		}
	}
	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode variables: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create variables dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write variables: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace variables: %w", err)
	}
	s.logger.Debug("variables saved", logging.String("path", s.path))
	return nil
}
