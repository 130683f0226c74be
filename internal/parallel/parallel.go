// Package parallel provides the chunked parallel-for used by the CPU
// backend's heavy kernels (matmul, convolution).
package parallel

import (
	"runtime"
	"sync"
)

// minWork is the smallest iteration count worth spreading over goroutines;
// below it the scheduling overhead dominates.
const minWork = 512

// For executes f(i) for i in [0, n), splitting the range across CPUs when
// the work is large enough. f must be safe to call concurrently for
// distinct i.
func For(n int, f func(i int)) {
	workers := runtime.NumCPU()
	if n < minWork || workers < 2 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
