// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

// Package endpoint manages the filesystem rendezvous point at which a server
// listens and clients connect.
//
// An endpoint is a Unix domain socket path. [Listen] takes ownership of the
// path: it removes a stale entry left behind by an earlier process, binds a
// fresh socket, and widens its permissions so that any local user can
// connect. The entry is not removed when the listener closes; the next Listen
// at the same path cleans it up.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/arkbow/mbus"
	"github.com/fsnotify/fsnotify"
)

// Mode is the permission mode set on a freshly bound endpoint. It allows any
// local principal to connect.
const Mode fs.FileMode = 0o666

// probeTimeout bounds the dial used to detect a live listener.
const probeTimeout = 250 * time.Millisecond

// Listen binds a Unix socket listener at addr.
//
// If an entry already exists at addr, Listen probes it with [Live]. If a
// listener may be active, Listen fails with an error of kind [mbus.KindAddressInUse] wrapping
// [mbus.ErrAddressInUse], rather than displacing it. Otherwise the entry is
// stale and is removed; if removal fails the error also has kind
// KindAddressInUse. Failure to bind or to set permissions is reported with
// kind [mbus.KindTransport].
func Listen(addr string) (*net.UnixListener, error) {
	if _, err := os.Lstat(addr); err == nil {
		if Live(addr) {
			return nil, &mbus.Error{Kind: mbus.KindAddressInUse, Op: "bind", Addr: addr, Err: mbus.ErrAddressInUse}
		}
		if err := os.Remove(addr); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &mbus.Error{Kind: mbus.KindAddressInUse, Op: "remove stale endpoint", Addr: addr, Err: err}
		}
	}

	lst, err := net.ListenUnix("unix", &net.UnixAddr{Name: addr, Net: "unix"})
	if err != nil {
		return nil, &mbus.Error{Kind: mbus.KindTransport, Op: "bind", Addr: addr, Err: err}
	}
	lst.SetUnlinkOnClose(false)

	if err := os.Chmod(addr, Mode); err != nil {
		lst.Close()
		return nil, &mbus.Error{Kind: mbus.KindTransport, Op: "chmod", Addr: addr, Err: err}
	}
	return lst, nil
}

// Live reports whether a listener may be active at addr. It probes with a
// real connection, which a live server sees as a subscriber that hangs up at
// once.
//
// Only a refused connection or a missing entry counts as not live. Any other
// failure, such as a full listen queue or a probe timeout, is reported as
// live, so that Listen never removes the path of a server that is merely busy.
func Live(addr string) bool {
	conn, err := net.DialTimeout("unix", addr, probeTimeout)
	if err != nil {
		return !stale(err)
	}
	conn.Close()
	return true
}

// stale reports whether err from dialing an endpoint shows that no listener
// owns it.
func stale(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, fs.ErrNotExist)
}

// Dial connects to the listener at addr. It does not retry: if nothing is
// listening, it fails immediately with an error of kind [mbus.KindTransport].
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", addr)
	if err != nil {
		return nil, &mbus.Error{Kind: mbus.KindTransport, Op: "connect", Addr: addr, Err: err}
	}
	return conn, nil
}

// Wait blocks until an entry exists at addr or ctx ends. It watches the parent
// directory of addr for changes, so the directory must already exist.
func Wait(ctx context.Context, addr string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(addr)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// Check after the watch is established, so a creation between the check
	// and the watch is not missed.
	if exists(addr) {
		return nil
	}
	want := filepath.Clean(addr)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if filepath.Clean(ev.Name) == want && ev.Has(fsnotify.Create) {
				return nil
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
