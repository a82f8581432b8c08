package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kingrea/configcrunch/document"
	"github.com/kingrea/configcrunch/internal/storage"
)

const watchDebounce = 150 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch <file>...",
	Short: "Reload documents whenever an input or local repository file changes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return a.runWatch(ctx, cmd, args, cmd.OutOrStdout())
	},
}

// watchDirs lists the directories holding the inputs plus every directory
// below local lookup paths.
func (a *app) watchDirs(files []string) ([]string, error) {
	seen := map[string]bool{}
	var dirs []string
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	for _, f := range files {
		add(filepath.Dir(a.path(f)))
	}
	for _, raw := range a.cfg.LookupPaths {
		lp, err := storage.ParseLookupPath(a.dir, raw)
		if err != nil {
			return nil, err
		}
		if lp.IsS3() {
			a.logger.WithField("lookup", lp.String()).Warn("remote lookup path is not watched")
			continue
		}
		tree, err := subdirs(lp.Dir)
		for _, dir := range tree {
			add(dir)
		}
		if err != nil {
			a.logger.WithError(err).WithField("lookup", lp.Dir).Warn("skipping lookup path")
		}
	}
	return dirs, nil
}

// subdirs lists root and every directory below it. Directories found
// before a walk error are still returned.
func subdirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

// watchTree adds a directory created while watching, together with any
// directories already created below it.
func (a *app) watchTree(watcher *fsnotify.Watcher, root string) {
	dirs, err := subdirs(root)
	if err != nil {
		a.logger.WithError(err).WithField("dir", root).Warn("cannot walk new directory")
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			a.logger.WithError(err).WithField("dir", dir).Warn("cannot watch directory")
		}
	}
}

func (a *app) runWatch(ctx context.Context, cmd *cobra.Command, files []string, out io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs, err := a.watchDirs(files)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	reload := func() {
		a.loader.Invalidate()
		if err := a.runLoad(cmd, files, out); err != nil {
			a.logger.WithError(err).Error("reload failed")
		}
	}
	reload()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					a.watchTree(watcher, event.Name)
					pending = time.After(watchDebounce)
					continue
				}
			}
			if !isDocumentFile(event.Name) {
				continue
			}
			a.logger.WithField("file", event.Name).WithField("op", event.Op.String()).Debug("change detected")
			pending = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.WithError(err).Warn("watch error")
		case <-pending:
			pending = nil
			fmt.Fprintln(out, "---")
			reload()
		}
	}
}

func isDocumentFile(name string) bool {
	ext := filepath.Ext(name)
	for _, known := range document.Extensions {
		if ext == known {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
