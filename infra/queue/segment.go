package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const segmentPattern = "segment-*.log"

type segment struct {
	file   *os.File
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.log", index))
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &segment{file: f, offset: info.Size()}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	if err != nil {
		return err
	}
	s.offset += int64(n)
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

// listSegments returns segment paths in index order. Zero-padded names
// make the lexical glob order the index order, but parse anyway so a
// stray index never silently reorders replay.
func listSegments(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, segmentPattern))
	if err != nil {
		return nil, err
	}
	sort.Slice(paths, func(i, j int) bool {
		return segmentIndex(paths[i]) < segmentIndex(paths[j])
	})
	return paths, nil
}

func segmentIndex(path string) int {
	name := filepath.Base(path)
	name = strings.TrimPrefix(name, "segment-")
	name = strings.TrimSuffix(name, ".log")
	ix, err := strconv.Atoi(name)
	if err != nil {
		return -1
	}
	return ix
}
