// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval is how long Watch waits after the last change to the
// configuration file before reloading it.
var DebounceInterval = 100 * time.Millisecond

// Watch reloads the configuration file at path each time it changes and
// passes the new configuration to fn, until ctx is done. A change which
// fails to load is logged and otherwise ignored, so fn only ever sees
// valid configurations.
//
// The directory containing path is watched rather than the file, so
// editors which replace the file by renaming are handled. Watch blocks,
// and returns nil when ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(*Config)) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("httpexec/config: create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err = w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("httpexec/config: watch %s: %w", path, err)
	}

	timer := time.NewTimer(DebounceInterval)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("httpexec/config: watcher events channel closed")
			}
			if filepath.Clean(evt.Name) != abs || evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug("configuration file changed", "path", path, "op", evt.Op.String())
			timer.Reset(DebounceInterval)
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("httpexec/config: watcher errors channel closed")
			}
			logger.Warn("configuration watcher error", "path", path, "err", err)
		case <-timer.C:
			c, err := Load(path)
			if err != nil {
				logger.Warn("configuration reload failed", "path", path, "err", err)
				continue
			}
			logger.Info("configuration reloaded", "path", path)
			fn(c)
		}
	}
}
