package model

import (
	"math"
	"testing"
)

func TestAttendMatchesReference(t *testing.T) {
	cases := []struct {
		name    string
		nHead   int
		headDim int
		n       int
	}{
		{"single key", 2, 4, 1},
		{"four heads", 4, 8, 6},
		{"wide head", 1, 16, 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.nHead * tc.headDim
			q := make([]float32, d)
			keys := make([]float32, tc.n*d)
			values := make([]float32, tc.n*d)
			fillTestData(q, 0.1)
			fillTestData(keys, 0.2)
			fillTestData(values, 0.3)

			got := make([]float32, d)
			attend(got, q, keys, values, tc.n, tc.nHead, make([]float32, tc.n+3))

			want := referenceAttention(q, keys, values, tc.n, tc.nHead)
			compareSlices(t, got, want, 1e-5)
		})
	}
}

func TestAttendSingleKeyReturnsValue(t *testing.T) {
	q := []float32{1, 2, 3, 4}
	keys := []float32{5, 6, 7, 8}
	values := []float32{0.5, -1, 2, 3}
	out := make([]float32, 4)
	attend(out, q, keys, values, 1, 2, make([]float32, 1))
	compareSlices(t, out, values, 1e-6)
}

func BenchmarkAttend(b *testing.B) {
	const (
		nHead   = 16
		headDim = 64
		n       = 256
	)
	d := nHead * headDim
	q := make([]float32, d)
	keys := make([]float32, n*d)
	values := make([]float32, n*d)
	fillTestData(q, 0.01)
	fillTestData(keys, 0.02)
	fillTestData(values, 0.03)
	out := make([]float32, d)
	scores := make([]float32, n)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		attend(out, q, keys, values, n, nHead, scores)
	}
}

func referenceAttention(q, keys, values []float32, n, nHead int) []float32 {
	d := len(q)
	headDim := d / nHead
	scale := float32(1.0 / math.Sqrt(float64(headDim)))
	out := make([]float32, d)
	scores := make([]float32, n)

	for h := 0; h < nHead; h++ {
		qh := q[h*headDim : (h+1)*headDim]
		for t := 0; t < n; t++ {
			off := t*d + h*headDim
			scores[t] = dotRef(qh, keys[off:off+headDim]) * scale
		}
		softmaxRef(scores)
		oh := out[h*headDim : (h+1)*headDim]
		for i := range headDim {
			var sum float32
			for t := 0; t < n; t++ {
				sum += scores[t] * values[t*d+h*headDim+i]
			}
			oh[i] = sum
		}
	}
	return out
}

func dotRef(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func softmaxRef(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

func fillTestData(x []float32, scale float32) {
	for i := range x {
		x[i] = scale * float32((i%29)-14)
	}
}

func compareSlices(t *testing.T, got, want []float32, tol float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] < want[i]-tol || got[i] > want[i]+tol {
			t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}
