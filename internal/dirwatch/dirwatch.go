// Package dirwatch demonstrates driving a Reactor from an external
// notification source on another goroutine, using the self-pipe trick:
// fsnotify delivers filesystem events on its own channel-draining
// goroutine, which writes a wakeup byte into an os.Pipe the Reactor watches
// with OnReadable. The actual user callback always runs on the Reactor's
// own goroutine, never on the fsnotify one.
package dirwatch

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"

	"github.com/coalmine/reactor"
)

// Event is a filesystem change notification forwarded onto the reactor's
// own goroutine.
type Event struct {
	Name string
	Op   fsnotify.Op
}

// Handler is invoked on the reactor's goroutine for each forwarded Event.
type Handler func(r *reactor.Reactor, ev Event)

// Bridge watches one or more directories/files for changes and forwards
// them into a Reactor. Events naming a file that contains a
// `schema_version = "<semver>"` line (the first such line counts) are
// checked against minVersionConstraint
// (e.g. "^1.0.0") before being forwarded: a reload whose on-disk schema has
// drifted out of the supported range is dropped rather than handed to
// Handler.
type Bridge struct {
	reactor    *reactor.Reactor
	watcher    *fsnotify.Watcher
	handler    Handler
	constraint *semver.Constraints

	readEnd  *os.File
	writeEnd *os.File

	mu      sync.Mutex
	pending []Event

	watcherID reactor.WatcherID
}

// New builds a Bridge wired into r. minVersionConstraint may be empty to
// skip the schema-version gate entirely.
func New(r *reactor.Reactor, handler Handler, minVersionConstraint string) (*Bridge, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("dirwatch: new fsnotify watcher: %w", err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("dirwatch: self-pipe: %w", err)
	}

	var constraint *semver.Constraints
	if minVersionConstraint != "" {
		constraint, err = semver.NewConstraint(minVersionConstraint)
		if err != nil {
			w.Close()
			pr.Close()
			pw.Close()
			return nil, fmt.Errorf("dirwatch: schema version constraint %q: %w", minVersionConstraint, err)
		}
	}

	b := &Bridge{
		reactor:    r,
		watcher:    w,
		handler:    handler,
		constraint: constraint,
		readEnd:    pr,
		writeEnd:   pw,
	}

	go b.drainFsnotify()
	b.watcherID = r.OnReadable(reactor.NewFileStream(pr), b.onWake, true)

	return b, nil
}

// Add starts watching path (file or directory), per fsnotify's own rules.
func (b *Bridge) Add(path string) error {
	return b.watcher.Add(path)
}

// Close stops watching, cancels the reactor-side watcher, and releases the
// self-pipe. The handler will not be invoked again after Close returns.
func (b *Bridge) Close() error {
	b.reactor.Cancel(b.watcherID)
	werr := b.watcher.Close()
	b.writeEnd.Close()
	b.readEnd.Close()
	return werr
}

// drainFsnotify runs on its own goroutine for the lifetime of the Bridge,
// the only place this package touches anything off the reactor's thread.
func (b *Bridge) drainFsnotify() {
	wake := []byte{0}
	for {
		select {
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.mu.Lock()
			b.pending = append(b.pending, Event{Name: ev.Name, Op: ev.Op})
			b.mu.Unlock()
			b.writeEnd.Write(wake)
		case _, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// onWake runs on the reactor's goroutine: drain the wakeup bytes, snapshot
// the pending events queued by drainFsnotify, and forward each one (after
// the optional schema-version gate) to Handler.
func (b *Bridge) onWake(r *reactor.Reactor, id reactor.WatcherID, stream reactor.Stream) {
	buf := make([]byte, 64)
	b.readEnd.Read(buf) //nolint:errcheck // best-effort drain of wakeup bytes

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, ev := range batch {
		if b.constraint != nil && !b.schemaCompatible(ev.Name) {
			continue
		}
		b.handler(r, ev)
	}
}

// schemaCompatible reports whether name's first `schema_version = "..."`
// line satisfies the Bridge's constraint. A missing or unparseable field is
// treated as compatible: the gate only rejects an explicit, known-bad
// version, it never blocks a file that simply predates schema versioning.
func (b *Bridge) schemaCompatible(name string) bool {
	f, err := os.Open(name)
	if err != nil {
		return true
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		const prefix = "schema_version"
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			break
		}
		raw := strings.Trim(strings.TrimSpace(line[idx+1:]), `"`)
		ver, verr := semver.NewVersion(raw)
		if verr != nil {
			return true
		}
		return b.constraint.Check(ver)
	}
	return true
}
