// Package bufpool pools the byte buffers the fragment writer and reader
// use to stage tile payloads, keyed by power-of-two size class.
package bufpool

import "sync"

// pools maps a size class (rounded up to the next power of two) to a
// *sync.Pool of byte slices of exactly that size. A sync.Map avoids a
// mutex on the hot path; in practice only a handful of distinct tile
// sizes exist per run, so the map stays small.
var pools sync.Map

// Get returns a []byte of length n, reused from the pool when available.
// The returned slice's contents are not zeroed — callers overwrite before
// reading.
func Get(n int) []byte {
	class := sizeClass(n)
	if p, ok := pools.Load(class); ok {
		if v := p.(*sync.Pool).Get(); v != nil {
			buf := v.([]byte)
			return buf[:n]
		}
	}
	return make([]byte, n, class)
}

// Put returns buf to the pool for reuse. The slice is re-keyed by its
// capacity, not its length, so a buffer trimmed with Get's [:n] can still
// be recycled at full size.
func Put(buf []byte) {
	if buf == nil {
		return
	}
	class := cap(buf)
	p, _ := pools.LoadOrStore(class, &sync.Pool{})
	p.(*sync.Pool).Put(buf[:cap(buf)])
}

func sizeClass(n int) int {
	if n <= 0 {
		return 0
	}
	class := 1
	for class < n {
		class <<= 1
	}
	return class
}
