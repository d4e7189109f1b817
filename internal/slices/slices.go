// Package slices discovers the numbered slice images that make up a print object.
package slices

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrNotDirectory is returned when an object path is not a directory.
	ErrNotDirectory = errors.New("object path is not a directory")
	// ErrNoSlices is returned when a directory holds no numbered images.
	ErrNoSlices = errors.New("no slice images found")
)

var slicePattern = regexp.MustCompile(`^(.*?)([0-9]+)(\.(?i:png|bmp|jpg|jpeg))$`)

// Set is a discovered run of slice images: <Prefix><index><Ext>, indices 0..Count-1.
type Set struct {
	Dir    string
	Prefix string
	Ext    string
	Width  int
	Count  int
}

// Path returns the image for layer i.
func (s Set) Path(i int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s%0*d%s", s.Prefix, s.Width, i, s.Ext))
}

// Name is the object's directory name without a .slice suffix.
func (s Set) Name() string {
	return strings.TrimSuffix(filepath.Base(s.Dir), ".slice")
}

// Discover scans dir for a contiguous run of numbered images starting at zero.
func Discover(dir string) (Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Set{}, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
		}
		return Set{}, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return Set{}, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Set{}, fmt.Errorf("read %s: %w", dir, err)
	}

	type key struct{ prefix, ext string }
	groups := make(map[key]map[int]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := slicePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		k := key{prefix: m[1], ext: m[3]}
		if groups[k] == nil {
			groups[k] = make(map[int]int)
		}
		groups[k][idx] = len(m[2])
	}
	if len(groups) == 0 {
		return Set{}, fmt.Errorf("%s: %w", dir, ErrNoSlices)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(groups[keys[i]]) != len(groups[keys[j]]) {
			return len(groups[keys[i]]) > len(groups[keys[j]])
		}
		return keys[i].prefix < keys[j].prefix
	})
	best := keys[0]
	indices := groups[best]

	width, ok := indices[0]
	if !ok {
		return Set{}, fmt.Errorf("%s: slice %s0%s missing: %w", dir, best.prefix, best.ext, ErrNoSlices)
	}
	for i := 0; i < len(indices); i++ {
		if _, ok := indices[i]; !ok {
			return Set{}, fmt.Errorf("%s: slice sequence has a gap at %d", dir, i)
		}
	}

	return Set{Dir: dir, Prefix: best.prefix, Ext: best.ext, Width: width, Count: len(indices)}, nil
}

// Object is a printable directory under the objects root.
type Object struct {
	Name   string
	Path   string
	Slices int
}

// List returns every subdirectory of root that holds a valid slice set.
func List(root string) ([]Object, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir %s: %w", root, err)
	}
	var objects []Object
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		set, err := Discover(filepath.Join(root, entry.Name()))
		if err != nil {
			continue
		}
		objects = append(objects, Object{Name: set.Name(), Path: set.Dir, Slices: set.Count})
	}
	return objects, nil
}
