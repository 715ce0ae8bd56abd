package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matVecNaive(dst []float32, w *Mat, x []float32) {
	for i := 0; i < w.R; i++ {
		row := w.Data[i*w.C : (i+1)*w.C]
		var sum float32
		for j := 0; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}

func TestMatVecParallelMatchesSerial(t *testing.T) {
	// Wide enough to go through the pool, with a row count that does not
	// divide evenly across workers.
	r, c := 1031, 128
	require.GreaterOrEqual(t, r*c, parallelMin)
	w := NewMat(r, c)
	FillRand(&w, 3)
	x := make([]float32, c)
	for i := range x {
		x[i] = float32(i%7) - 3
	}

	want := make([]float32, r)
	matVecRange(want, &w, x, 0, r)
	got := make([]float32, r)
	MatVec(got, &w, x)
	assert.Equal(t, want, got)

	naive := make([]float32, r)
	matVecNaive(naive, &w, x)
	assert.InDeltaSlice(t, naive, got, 1e-4)
}

func TestMatVecPoolSizes(t *testing.T) {
	w := NewMat(9, 4)
	FillRand(&w, 5)
	x := []float32{1, -1, 0.5, 2}
	want := make([]float32, 9)
	matVecRange(want, &w, x, 0, 9)

	for _, size := range []int{0, 1, 2, 4, 16} {
		got := make([]float32, 9)
		newMatVecPool(size).run(got, &w, x)
		assert.Equal(t, want, got, "pool size %d", size)
	}
}

func BenchmarkMatVecNaive(b *testing.B) {
	r, c := 2048, 2048
	w := NewMat(r, c)
	x := make([]float32, c)
	dst := make([]float32, r)
	FillRand(&w, 1)

	for b.Loop() {
		matVecNaive(dst, &w, x)
	}
}

func BenchmarkMatVecPool(b *testing.B) {
	r, c := 2048, 2048
	w := NewMat(r, c)
	x := make([]float32, c)
	dst := make([]float32, r)
	FillRand(&w, 1)

	for b.Loop() {
		MatVec(dst, &w, x)
	}
}
