// Package mmappool implements a pool of fixed-size off-heap byte slices, backed by anonymous memory-mapped files.
// The service reads uploaded images into them, so large request bodies don't grow the Go heap.
package mmappool

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
)

type Pool struct {
	free     chan mmap.MMap
	elemSize int
	created  atomic.Int32
	log      *slog.Logger
}

// New creates a pool of at most poolSize idle buffers of elemSize bytes each.
// Buffers are mapped lazily, when Get finds no idle one.
func New(elemSize, poolSize int, logger *slog.Logger) *Pool {
	if elemSize < 8 {
		panic("illegal elemSize for mmappool")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{free: make(chan mmap.MMap, poolSize), elemSize: elemSize, log: logger}
}

// Get returns a buffer of ElemSize bytes. The caller must hand it back with Put.
// If mapping fails, a heap allocated slice is returned together with the error.
// Buffers must not be resliced regarding the lower bound.
func (p *Pool) Get() ([]byte, error) {
	select {
	case b := <-p.free:
		return b[:p.elemSize], nil
	default:
	}
	b, err := mmap.MapRegion(nil, p.elemSize, mmap.RDWR, mmap.ANON, 0)
	created := p.created.Add(1)
	if err != nil {
		return make([]byte, p.elemSize), err
	}
	if int(created) > p.PoolSize() {
		p.log.Debug("More buffers mapped than the pool holds", "created", created, "poolSize", p.PoolSize())
	}
	return b, nil
}

// Put returns b to the pool. Buffers exceeding the pool's capacity are unmapped.
func (p *Pool) Put(b []byte) {
	if cap(b) != p.elemSize {
		p.log.Debug("Discarding buffer with wrong cap", "cap", cap(b))
		return
	}
	select {
	case p.free <- b[:p.elemSize]:
	default:
		p.created.Add(-1)
		mmapB := mmap.MMap(b[:p.elemSize])
		if err := mmapB.Unmap(); err != nil {
			p.log.Debug("Unmapping buffer failed", "err", err)
		}
	}
}

// ReadAll reads r into a buffer from the pool until r is exhausted or the
// buffer is full. data aliases buf; pass buf to Put when data is no longer used.
func (p *Pool) ReadAll(r io.Reader) (data, buf []byte, err error) {
	buf, err = p.Get()
	if err != nil {
		p.log.Warn("Mapping buffer failed, using heap", "err", err)
	}
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return buf[:n], buf, err
}

// Idle reports the number of buffers ready to use.
func (p *Pool) Idle() int {
	return len(p.free)
}

// PoolSize returns the maximum number of idle buffers
func (p *Pool) PoolSize() int {
	return cap(p.free)
}

// ElemSize returns the size of each buffer.
func (p *Pool) ElemSize() int {
	return p.elemSize
}

// Free unmaps all idle buffers. Errors indicate buffers that were not mmaps.
func (p *Pool) Free() error {
	var errs []error
	for {
		select {
		case b := <-p.free:
			p.created.Add(-1)
			mmapB := mmap.MMap(b[:p.elemSize])
			if err := mmapB.Unmap(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}
