package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watch calls run once, then again every time file is written, until ctx
// is done. Failures of run are printed and do not stop the loop.
func watch(ctx context.Context, out io.Writer, file string, run func() error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	// editors often replace the file, so watch its directory
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", file, err)
	}

	report := func() {
		if err := run(); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		fmt.Fprintf(out, "--- watching %s\n", file)
	}
	report()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if name, err := filepath.Abs(ev.Name); err != nil || name != abs {
				continue
			}
			report()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", file, err)
		}
	}
}
