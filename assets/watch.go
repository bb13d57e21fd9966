package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/mockup"
)

// Change reports a modified scene asset.
type Change struct {
	SceneID int
	Name    string // asset file name, e.g. "uv.png"
}

// Watcher reports changes below a local scene directory laid out as
// {root}/{id}/images/{asset}.
type Watcher struct {
	root string
	fs   *fsnotify.Watcher
}

// NewWatcher watches root and the images directory of every scene in it.
// Scenes added later are picked up when their directory appears.
func NewWatcher(root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("assets: create watcher: %w", err)
	}
	w := &Watcher{root: filepath.Clean(root), fs: fw}
	if err := fw.Add(w.root); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("assets: watch %s: %w", root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("assets: read %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addScene(filepath.Join(w.root, e.Name()))
		}
	}
	return w, nil
}

// addScene watches dir and its images directory if dir is a scene.
func (w *Watcher) addScene(dir string) {
	if _, err := strconv.Atoi(filepath.Base(dir)); err != nil {
		return
	}
	for _, d := range []string{dir, filepath.Join(dir, "images")} {
		if err := w.fs.Add(d); err != nil && !errors.Is(err, os.ErrNotExist) {
			mockup.Logger().Warn("assets: watch scene", "dir", d, "err", err)
		}
	}
}

// Run delivers changes to fn until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, fn func(Change)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					w.addDir(ev.Name)
					continue
				}
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if c, ok := w.change(ev.Name); ok {
				mockup.Logger().Debug("assets: scene changed", "scene", c.SceneID, "asset", c.Name)
				fn(c)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			mockup.Logger().Warn("assets: watcher error", "err", err)
		}
	}
}

// addDir handles a new directory: a new scene or a scene's images
// directory.
func (w *Watcher) addDir(dir string) {
	if filepath.Dir(dir) == w.root {
		w.addScene(dir)
		return
	}
	if filepath.Base(dir) == "images" {
		if err := w.fs.Add(dir); err != nil {
			mockup.Logger().Warn("assets: watch scene", "dir", dir, "err", err)
		}
	}
}

// change maps an event path to the scene it belongs to.
func (w *Watcher) change(path string) (Change, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return Change{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || parts[1] != "images" {
		return Change{}, false
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return Change{}, false
	}
	return Change{SceneID: id, Name: parts[2]}, true
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
