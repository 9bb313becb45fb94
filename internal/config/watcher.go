// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses the bursts of write events editors produce into
// a single reload.
const watchDebounce = 250 * time.Millisecond

// Watcher reloads configuration when the file changes on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	onLoad  func(*Config)
	done    chan struct{}
}

// Watch starts watching the configuration file. onLoad is invoked with the
// freshly loaded configuration after every successful reload; parse or
// validation failures keep the previous configuration and are logged.
func Watch(path string, onLoad func(*Config)) (*Watcher, error) {
	if path == "" {
		path = DefaultPath()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files by rename,
	// which drops a watch registered on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher: fw,
		path:    path,
		onLoad:  onLoad,
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			cfg, err := Load(w.path)
			if err != nil {
				log.Printf("config: reload failed, keeping previous: %v", err)
				continue
			}
			w.onLoad(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watch error: %v", err)
		}
	}
}
