package logits

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var negInf = float32(math.Inf(-1))

// TestSamplerDeterminism ensures that two samplers seeded identically produce
// identical draws for the same logits.
func TestSamplerDeterminism(t *testing.T) {
	logs := []float32{0, 1, 2, 3, 4, 5}
	s1 := NewSampler(rand.New(rand.NewSource(42)), SamplerConfig{Temperature: 0.9, TopP: 0.95})
	s2 := NewSampler(rand.New(rand.NewSource(42)), SamplerConfig{Temperature: 0.9, TopP: 0.95})
	for i := 0; i < 20; i++ {
		require.Equal(t, s1.Sample(logs), s2.Sample(logs), "draw %d", i)
	}
}

// TestSamplerTopP checks that a dominant token is the only survivor when its
// probability alone reaches TopP.
func TestSamplerTopP(t *testing.T) {
	logs := []float32{0, 10, 0, 0, 0}
	s := NewSampler(rand.New(rand.NewSource(7)), SamplerConfig{Temperature: 1, TopP: 0.5})
	for i := 0; i < 50; i++ {
		require.Equal(t, 1, s.Sample(logs))
	}
}

func TestSamplerTopPKeepsNucleus(t *testing.T) {
	// Probabilities 0.5, 0.3, 0.2 with P=0.75: the nucleus is the first two
	// tokens.
	logs := []float32{
		float32(math.Log(0.2)),
		float32(math.Log(0.5)),
		float32(math.Log(0.3)),
	}
	s := NewSampler(rand.New(rand.NewSource(1)), SamplerConfig{Temperature: 1, TopP: 0.75})
	counts := map[int]int{}
	for i := 0; i < 2000; i++ {
		counts[s.Sample(logs)]++
	}
	assert.Zero(t, counts[0])
	assert.Greater(t, counts[1], counts[2])
	assert.Positive(t, counts[2])
}

func TestSamplerSkipsBannedTokens(t *testing.T) {
	logs := []float32{negInf, 1, negInf, 1}
	s := NewSampler(rand.New(rand.NewSource(3)), SamplerConfig{Temperature: 1, TopP: 1})
	for i := 0; i < 100; i++ {
		got := s.Sample(logs)
		require.Contains(t, []int{1, 3}, got)
	}
}

func TestSamplerAllBanned(t *testing.T) {
	s := NewSampler(rand.New(rand.NewSource(3)), SamplerConfig{})
	assert.Equal(t, 0, s.Sample([]float32{negInf, negInf}))
}

func TestSamplerLowTemperatureIsGreedy(t *testing.T) {
	logs := []float32{-1, 5, 3, 7, 2}
	s := NewSampler(rand.New(rand.NewSource(99)), SamplerConfig{Temperature: 0.01, TopP: 1})
	for i := 0; i < 20; i++ {
		require.Equal(t, 3, s.Sample(logs))
	}
}

func TestTopK(t *testing.T) {
	idx, val := TopK([]float32{3, 9, 1, 9, 5, negInf}, 3)
	assert.Equal(t, []int{1, 3, 4}, idx)
	assert.Equal(t, []float32{9, 9, 5}, val)

	idx, _ = TopK([]float32{1, 2}, 5)
	assert.Equal(t, []int{1, 0}, idx)

	idx, val = TopK([]float32{1, 2}, 0)
	assert.Nil(t, idx)
	assert.Nil(t, val)
}

func TestRepetitionPenalty(t *testing.T) {
	p := &Processors{RepetitionPenalty: 2, EOS: -1}
	logs := []float32{4, -4, 4, 1}
	p.Apply(logs, []int{0, 1, 1, 0})
	assert.Equal(t, []float32{2, -8, 4, 1}, logs, "each seen token is penalised once")

	logs = []float32{4, -4, 4, 1}
	p.Apply(logs, []int{2})
	assert.Equal(t, []float32{4, -4, 2, 1}, logs, "marks reset between calls")
}

func TestBanRepeatedNGrams(t *testing.T) {
	cases := []struct {
		name   string
		seq    []int
		n      int
		banned []int
	}{
		{"too short", []int{1, 2}, 3, nil},
		{"no match", []int{1, 2, 3, 4}, 3, nil},
		{"trigram repeats", []int{1, 5, 6, 7, 5, 6}, 3, []int{7}},
		{"several continuations", []int{5, 6, 1, 5, 6, 2, 5, 6}, 3, []int{1, 2}},
		{"bigram", []int{4, 2, 4}, 2, []int{2}},
		{"unigram bans all seen", []int{0, 3}, 1, []int{0, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs := make([]float32, 8)
			BanRepeatedNGrams(logs, tc.seq, tc.n)
			var got []int
			for i, v := range logs {
				if math.IsInf(float64(v), -1) {
					got = append(got, i)
				}
			}
			assert.Equal(t, tc.banned, got)
		})
	}
}

func TestMinLengthForbidsEOS(t *testing.T) {
	p := &Processors{MinLength: 3, EOS: 2}
	logs := []float32{0, 0, 5}
	p.Apply(logs, []int{1, 0})
	assert.True(t, math.IsInf(float64(logs[2]), -1))

	logs = []float32{0, 0, 5}
	p.Apply(logs, []int{1, 0, 0})
	assert.Equal(t, float32(5), logs[2])
}

func TestProcessorsOrder(t *testing.T) {
	// Banned tokens stay at -Inf after every processor.
	p := &Processors{RepetitionPenalty: 1.3, NoRepeatNGramSize: 2, MinLength: 10, EOS: 3}
	logs := []float32{1, 1, 1, 1}
	p.Apply(logs, []int{1, 2, 1})
	assert.True(t, math.IsInf(float64(logs[2]), -1))
	assert.True(t, math.IsInf(float64(logs[3]), -1))
	assert.InDelta(t, 1/1.3, logs[1], 1e-6)
	assert.Equal(t, float32(1), logs[0])
}
