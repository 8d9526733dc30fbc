// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const (
	watchPollMillis = 100
	watchSettle     = 50 * time.Millisecond
)

// Watcher reloads a config file whenever it is rewritten in place or
// replaced by a rename, and delivers each valid result on Changes. An
// edit that fails to load or validate is logged and skipped.
type Watcher struct {
	path    string
	logger  *slog.Logger
	changes chan *Config
}

// NewWatcher returns a Watcher for path. Call Run to start it.
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		path:    path,
		logger:  logger.With("component", "config"),
		changes: make(chan *Config),
	}
}

// Changes delivers reloaded configurations. A value is held until it
// is received.
func (w *Watcher) Changes() <-chan *Config { return w.changes }

// Run watches until ctx is done and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	path, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	filename := filepath.Base(path)

	// The directory is watched rather than the file: a rename installs
	// a new inode that a watch on the old one never sees.
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return fmt.Errorf("config: inotify: %w", err)
	}
	defer unix.Close(fd)
	if _, err := unix.InotifyAddWatch(fd, filepath.Dir(path), unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(path), err)
	}

	buffer := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		descriptors := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		count, err := unix.Poll(descriptors, watchPollMillis)
		if err == unix.EINTR || (err == nil && count == 0) {
			continue
		}
		if err != nil {
			return fmt.Errorf("config: polling inotify: %w", err)
		}

		n, err := unix.Read(fd, buffer)
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("config: reading inotify: %w", err)
		}
		if !eventsName(buffer[:n], filename) {
			continue
		}

		// Editors often write several times in a row.
		time.Sleep(watchSettle)
		drainEvents(fd, buffer)

		cfg, err := w.reload(path)
		if err != nil {
			w.logger.Warn("ignoring config change", "path", path, "error", err)
			continue
		}
		w.logger.Info("config reloaded", "path", path)

		select {
		case w.changes <- cfg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) reload(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// eventsName reports whether any inotify_event in buffer names
// filename. Each event is a 16-byte header (wd, mask, cookie, len)
// followed by len bytes of NUL-padded name.
func eventsName(buffer []byte, filename string) bool {
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buffer); {
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		end := offset + unix.SizeofInotifyEvent + nameLength
		if end > len(buffer) {
			return false
		}
		name := buffer[offset+unix.SizeofInotifyEvent : end]
		for i, b := range name {
			if b == 0 {
				name = name[:i]
				break
			}
		}
		if string(name) == filename {
			return true
		}
		offset = end
	}
	return false
}

func drainEvents(fd int, buffer []byte) {
	for {
		if _, err := unix.Read(fd, buffer); err != nil {
			return
		}
	}
}
