package tensor

import (
	"runtime"
	"sync"
)

// parallelMin is the smallest weight (rows*cols) that is split across the
// worker pool. Smaller products run on the calling goroutine.
const parallelMin = 1 << 16

type matVecTask struct {
	dst    []float32
	w      *Mat
	x      []float32
	rs, re int
	done   chan struct{}
}

type matVecPool struct {
	size      int
	tasks     chan matVecTask
	doneSlots chan chan struct{}
}

var (
	matVecWorkPool *matVecPool
	matVecPoolOnce sync.Once
)

func getMatVecPool() *matVecPool {
	matVecPoolOnce.Do(func() {
		matVecWorkPool = newMatVecPool(runtime.GOMAXPROCS(0))
	})
	return matVecWorkPool
}

func newMatVecPool(size int) *matVecPool {
	size = max(size, 1)
	p := &matVecPool{
		size:      size,
		tasks:     make(chan matVecTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for range size {
		p.doneSlots <- make(chan struct{}, size)
	}
	for range size {
		go func() {
			for task := range p.tasks {
				matVecRange(task.dst, task.w, task.x, task.rs, task.re)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// MatVec computes dst = w·x. dst must have length at least R and x length C.
// Large products are split by rows across a shared worker pool; every row is
// still summed in order, so results do not depend on the split.
func MatVec(dst []float32, w *Mat, x []float32) {
	if len(x) != w.C || len(dst) < w.R {
		panic("matvec shape mismatch")
	}
	if w.R*w.C < parallelMin {
		matVecRange(dst, w, x, 0, w.R)
		return
	}
	getMatVecPool().run(dst, w, x)
}

func (p *matVecPool) run(dst []float32, w *Mat, x []float32) {
	workers := min(p.size, w.R)
	if workers <= 1 {
		matVecRange(dst, w, x, 0, w.R)
		return
	}

	chunk := (w.R + workers - 1) / workers
	done := <-p.doneSlots
	active := 0
	for rs := 0; rs < w.R; rs += chunk {
		active++
		p.tasks <- matVecTask{dst: dst, w: w, x: x, rs: rs, re: min(rs+chunk, w.R), done: done}
	}
	for range active {
		<-done
	}
	p.doneSlots <- done
}

func matVecRange(dst []float32, w *Mat, x []float32, rs, re int) {
	for i := rs; i < re; i++ {
		dst[i] = Dot(w.Data[i*w.C:(i+1)*w.C], x)
	}
}
