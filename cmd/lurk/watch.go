package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/chazu/lurk/repl"
)

// watchFiles re-loads each file whenever it is written. Directories are
// watched rather than files so editors that replace files on save still
// trigger a reload.
func watchFiles(session *repl.Session, files []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if !dirs[dir] {
			if err := w.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
			dirs[dir] = true
		}
	}
	fmt.Fprintf(os.Stderr, "watching %d file(s), ^C to stop\n", len(watched))

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watched[ev.Name] || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			log.Debugf("%s changed", ev.Name)
			fmt.Fprintf(os.Stderr, "--- %s\n", filepath.Base(ev.Name))
			if err := session.LoadFile(ev.Name); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Errorf("watch: %s", err)
		}
	}
}
