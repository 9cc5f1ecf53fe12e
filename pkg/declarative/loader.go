package declarative

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pitabwire/util"

	"github.com/voicetyped/adaptive/pkg/adaptive"
	"github.com/voicetyped/adaptive/pkg/dialog"
)

// Loader loads and optionally hot-reloads adaptive dialogs from the YAML
// resources of a directory. A resource without an id takes its file name
// minus the ".dialog.yaml", ".yaml" or ".yml" suffix.
type Loader struct {
	dir     string
	builder *Builder

	mu       sync.RWMutex
	dialogs  map[string]*adaptive.Dialog
	onReload []func(*dialog.Set)
}

// NewLoader creates a loader for dir. A nil builder uses the built-in
// kinds.
func NewLoader(dir string, b *Builder) *Loader {
	if b == nil {
		b = NewBuilder(nil)
	}
	return &Loader{
		dir:     dir,
		builder: b,
		dialogs: make(map[string]*adaptive.Dialog),
	}
}

// OnReload registers fn to receive the new dialog set after every
// successful LoadAll.
func (l *Loader) OnReload(fn func(*dialog.Set)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = append(l.onReload, fn)
}

// LoadAll loads every resource of the directory. Either all dialogs load
// and validate, or the previously loaded set stays in place.
func (l *Loader) LoadAll() (map[string]*adaptive.Dialog, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read dialog dir %q: %w", l.dir, err)
	}

	result := make(map[string]*adaptive.Dialog)
	for _, entry := range entries {
		if entry.IsDir() || !isResource(entry.Name()) {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		d, err := l.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		if _, dup := result[d.ID()]; dup {
			return nil, fmt.Errorf("load %q: dialog %q defined twice: %w", path, d.ID(), dialog.ErrConfiguration)
		}
		result[d.ID()] = d
	}
	if err := CheckReferences(result); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.dialogs = result
	hooks := slices.Clone(l.onReload)
	l.mu.Unlock()

	if len(hooks) > 0 {
		set := l.Set()
		for _, fn := range hooks {
			fn(set)
		}
	}
	return result, nil
}

// Get returns a loaded dialog by id.
func (l *Loader) Get(id string) (*adaptive.Dialog, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.dialogs[id]
	return d, ok
}

// All returns all loaded dialogs.
func (l *Loader) All() map[string]*adaptive.Dialog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make(map[string]*adaptive.Dialog, len(l.dialogs))
	for k, v := range l.dialogs {
		result[k] = v
	}
	return result
}

// IDs returns the ids of the loaded dialogs in sorted order.
func (l *Loader) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.dialogs))
	for id := range l.dialogs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Set returns a dialog set holding every loaded dialog, ready for a
// dialog.Manager.
func (l *Loader) Set() *dialog.Set {
	set := dialog.NewSet()
	for _, id := range l.IDs() {
		d, _ := l.Get(id)
		set.Add(d)
	}
	return set
}

func (l *Loader) loadFile(path string) (*adaptive.Dialog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	v, err := l.builder.Parse(data)
	if err != nil {
		return nil, err
	}
	d, ok := v.(*adaptive.Dialog)
	if !ok {
		return nil, fmt.Errorf("resource is a %T, want %s: %w", v, KindAdaptiveDialog, dialog.ErrConfiguration)
	}
	if d.ID() == "" {
		d.SetID(resourceID(filepath.Base(path)))
	}

	if err := Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

// WatchAndReload watches the directory and reloads on every change to a
// resource. A reload that fails is logged and the loaded dialogs stay in
// place. It blocks until ctx is done.
func (l *Loader) WatchAndReload(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	log := util.Log(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isResource(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if _, err := l.LoadAll(); err != nil {
					log.WithError(err).Error("reload dialogs")
					continue
				}
				slog.InfoContext(ctx, "dialogs reloaded", slog.String("file", event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func isResource(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

func resourceID(name string) string {
	for _, suffix := range []string{".dialog.yaml", ".dialog.yml", ".yaml", ".yml"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}
