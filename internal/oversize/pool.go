// Package oversize implements the allocation path for chunks that
// exceed the main block list's normal threshold: a single detached block
// run served from a size-bucketed pool, kept outside the MPSC free list
// so rare, bursty, large entries never cause head-of-line blocking for
// small ones. Released runs carry a time-bounded deadline before they
// are actually handed back to the underlying pool.
package oversize

import "sync"

// bucketSizes are the power-of-two size classes the pool serves,
// mirroring the bucketed-sync.Pool technique used for I/O buffer reuse
// elsewhere in this codebase's ancestry: request sizes round up to the
// next bucket so a small number of pools absorb a wide range of chunk
// sizes. Uses the *[]byte pattern to avoid sync.Pool's interface-boxing
// allocation on every Get/Put.
var bucketSizes = [...]int{
	2 * 1024,
	8 * 1024,
	32 * 1024,
	128 * 1024,
	512 * 1024,
	2 * 1024 * 1024,
	8 * 1024 * 1024,
}

type bucketPool struct {
	size int
	pool sync.Pool
}

// Pool is a size-bucketed byte-slice allocator for oversize chunks.
type Pool struct {
	buckets []*bucketPool
}

// NewPool builds a Pool with the standard bucket ladder.
func NewPool() *Pool {
	p := &Pool{buckets: make([]*bucketPool, len(bucketSizes))}
	for i, size := range bucketSizes {
		size := size
		p.buckets[i] = &bucketPool{
			size: size,
			pool: sync.Pool{New: func() any { b := make([]byte, size); return &b }},
		}
	}
	return p
}

func (p *Pool) bucketFor(size int) *bucketPool {
	for _, b := range p.buckets {
		if size <= b.size {
			return b
		}
	}
	return nil
}

// Get returns a buffer of at least size bytes. A size larger than the
// largest bucket is allocated directly (not pooled) since it falls
// outside the configured oversize ladder entirely.
func (p *Pool) Get(size uint32) []byte {
	b := p.bucketFor(int(size))
	if b == nil {
		return make([]byte, size)
	}
	buf := *(b.pool.Get().(*[]byte))
	return buf[:size]
}

// Put returns buf to the bucket matching its capacity. A buffer whose
// capacity does not match any bucket exactly (e.g. the oversized-beyond-
// the-ladder case from Get) is simply dropped and left to the garbage
// collector.
func (p *Pool) Put(buf []byte) {
	c := cap(buf)
	for _, b := range p.buckets {
		if b.size == c {
			full := buf[:c]
			b.pool.Put(&full)
			return
		}
	}
}
