package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"meridian/domain/state"
)

const currentFile = "CURRENT"

// checkpointManager owns the checkpoint directory layout:
//
//	<root>/checkpoint-<watermark>/   one directory per checkpoint
//	<root>/CURRENT                   name of the newest complete one
//
// A checkpoint is written into a temp directory and renamed into place
// before CURRENT is updated, so a crash mid-write leaves the previous
// checkpoint intact and loadable.
type checkpointManager struct {
	root string
	keep int
}

func newCheckpointManager(root string, keep int) (*checkpointManager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	if keep < 1 {
		keep = 2
	}
	return &checkpointManager{root: root, keep: keep}, nil
}

func checkpointDirName(watermark uint64) string {
	return fmt.Sprintf("checkpoint-%020d", watermark)
}

// current returns the directory of the newest complete checkpoint, or
// ok=false when none exists yet.
func (c *checkpointManager) current() (dir string, watermark uint64, ok bool, err error) {
	raw, err := os.ReadFile(filepath.Join(c.root, currentFile))
	if os.IsNotExist(err) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	name := strings.TrimSpace(string(raw))
	watermark, err = parseCheckpointName(name)
	if err != nil {
		return "", 0, false, fmt.Errorf("corrupt CURRENT %q: %w", name, err)
	}
	return filepath.Join(c.root, name), watermark, true, nil
}

// write persists the state and flips CURRENT to it.
func (c *checkpointManager) write(st *state.SequencerState) error {
	name := checkpointDirName(st.Watermark)
	dir := filepath.Join(c.root, name)
	tmp := dir + ".tmp"

	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	if err := st.Persist(tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dir); err != nil {
		return err
	}

	curTmp := filepath.Join(c.root, currentFile+".tmp")
	if err := os.WriteFile(curTmp, []byte(name+"\n"), 0o644); err != nil {
		return err
	}
	if err := os.Rename(curTmp, filepath.Join(c.root, currentFile)); err != nil {
		return err
	}

	return c.prune()
}

// prune removes all but the newest keep checkpoints.
func (c *checkpointManager) prune() error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return err
	}
	var watermarks []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		w, err := parseCheckpointName(e.Name())
		if err != nil {
			continue
		}
		watermarks = append(watermarks, w)
	}
	if len(watermarks) <= c.keep {
		return nil
	}
	sort.Slice(watermarks, func(i, j int) bool { return watermarks[i] > watermarks[j] })
	for _, w := range watermarks[c.keep:] {
		if err := os.RemoveAll(filepath.Join(c.root, checkpointDirName(w))); err != nil {
			return err
		}
	}
	return nil
}

func parseCheckpointName(name string) (uint64, error) {
	rest, ok := strings.CutPrefix(name, "checkpoint-")
	if !ok || strings.HasSuffix(name, ".tmp") {
		return 0, fmt.Errorf("not a checkpoint directory")
	}
	return strconv.ParseUint(rest, 10, 64)
}
