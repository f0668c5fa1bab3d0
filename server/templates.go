package server

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"voxpro/logger"

	"github.com/fsnotify/fsnotify"
)

//go:embed templates/*.html
var defaultTemplates embed.FS

const (
	playerTemplate   = "player.html"
	notFoundTemplate = "not_found.html"
)

// PlayerTemplates holds the standalone player pages. When a template
// directory is configured its files override the embedded ones and are
// reloaded on change.
type PlayerTemplates struct {
	dir string

	mu  sync.RWMutex
	set *template.Template

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewPlayerTemplates parses the templates. An empty dir uses only the
// embedded defaults and starts no watcher.
func NewPlayerTemplates(dir string) (*PlayerTemplates, error) {
	t := &PlayerTemplates{dir: dir, done: make(chan struct{})}
	set, err := t.parse()
	if err != nil {
		return nil, err
	}
	t.set = set

	if dir == "" {
		return t, nil
	}
	if _, err := os.Stat(dir); err != nil {
		logger.Warn("template dir unavailable, using embedded templates",
			logger.String("dir", dir), logger.ErrorField(err))
		return t, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建模板监听器失败: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("监听模板目录失败: %w", err)
	}
	t.watcher = watcher
	t.wg.Add(1)
	go t.watch()
	return t, nil
}

// parse loads the embedded defaults, then any override found in dir.
func (t *PlayerTemplates) parse() (*template.Template, error) {
	set, err := template.ParseFS(defaultTemplates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	if t.dir == "" {
		return set, nil
	}
	for _, name := range []string{playerTemplate, notFoundTemplate} {
		path := filepath.Join(t.dir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, err := set.New(name).Parse(string(data)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return set, nil
}

func (t *PlayerTemplates) watch() {
	defer t.wg.Done()

	// 编辑器保存时会连续触发多次事件, 合并后再重新加载
	const settle = 100 * time.Millisecond
	var reload <-chan time.Time

	for {
		select {
		case <-t.done:
			return

		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".html" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				reload = time.After(settle)
			}

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("template watcher error", logger.ErrorField(err))

		case <-reload:
			reload = nil
			set, err := t.parse()
			if err != nil {
				// 保留上一次可用的模板
				logger.Error("reload templates failed", logger.ErrorField(err))
				continue
			}
			t.mu.Lock()
			t.set = set
			t.mu.Unlock()
			logger.Info("player templates reloaded", logger.String("dir", t.dir))
		}
	}
}

// Execute renders the named template.
func (t *PlayerTemplates) Execute(w io.Writer, name string, data interface{}) error {
	t.mu.RLock()
	set := t.set
	t.mu.RUnlock()
	return set.ExecuteTemplate(w, name, data)
}

// Close stops the watcher.
func (t *PlayerTemplates) Close() error {
	if t.watcher == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	default:
	}
	close(t.done)
	err := t.watcher.Close()
	t.wg.Wait()
	return err
}
