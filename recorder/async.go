package recorder

import (
	"errors"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/nobonobo/rigsim/driver"
)

// Multi fans frames out to every recorder.
type Multi []driver.Recorder

// ExportFrame ...
func (m Multi) ExportFrame(step int64, s *driver.Snapshot) error {
	var errs []error
	for _, r := range m {
		if err := r.ExportFrame(step, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close ...
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type job struct {
	step int64
	snap *driver.Snapshot
}

// Async hands frames to a background writer through a bounded queue. When
// the queue is full the frame is dropped and counted. Errors from the inner
// recorder are logged and the first one is returned by Close.
type Async struct {
	inner   driver.Recorder
	queue   chan job
	done    chan struct{}
	dropped atomic.Int64
	once    sync.Once
	err     error
}

// NewAsync ...
func NewAsync(inner driver.Recorder, depth int) *Async {
	a := &Async{
		inner: inner,
		queue: make(chan job, depth),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for j := range a.queue {
		if err := a.inner.ExportFrame(j.step, j.snap); err != nil {
			log.Println("recorder:", err)
			if a.err == nil {
				a.err = err
			}
		}
	}
}

// ExportFrame never blocks.
func (a *Async) ExportFrame(step int64, s *driver.Snapshot) error {
	select {
	case a.queue <- job{step: step, snap: s}:
	default:
		a.dropped.Add(1)
	}
	return nil
}

// Dropped ...
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close drains the queue and closes the inner recorder.
func (a *Async) Close() error {
	var err error
	a.once.Do(func() {
		close(a.queue)
		<-a.done
		if n := a.Dropped(); n > 0 {
			log.Printf("recorder: dropped %d frames", n)
		}
		err = errors.Join(a.err, a.inner.Close())
	})
	return err
}

// RunDir returns a fresh directory name under root, sortable by start time.
func RunDir(root string) string {
	return filepath.Join(root, ulid.Make().String())
}

// Open creates the standard recorder set in a new run directory: POV-Ray
// dumps, and a CSV trace and plots of the observed body when one is named.
func Open(root, observe string, depth int) (*Async, string, error) {
	dir := RunDir(root)
	pov, err := NewPovRay(filepath.Join(dir, "POVRAY"))
	if err != nil {
		return nil, "", err
	}
	m := Multi{pov}
	if observe != "" {
		trace, err := NewCSV(filepath.Join(dir, "trace.csv"), observe)
		if err != nil {
			return nil, "", err
		}
		m = append(m, trace, NewPlots(dir, observe))
	}
	return NewAsync(m, depth), dir, nil
}
