// Package maxent implements a small multinomial logistic regression
// (maximum entropy) classifier over sparse binary string features.
//
// Weights are kept in one flat vector indexed by
// featureID*numLabels + labelIndex.
package maxent

import (
	"math"
)

// Alphabet maps feature strings to dense integer ids.
type Alphabet struct {
	ids   map[string]int
	names []string
}

// NewAlphabet creates an empty alphabet.
func NewAlphabet() *Alphabet {
	return &Alphabet{ids: make(map[string]int)}
}

// Add returns the id of s, assigning the next free id if s is new.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ids[s]; ok {
		return id
	}
	id := len(a.names)
	a.ids[s] = id
	a.names = append(a.names, s)
	return id
}

// ID returns the id of s or -1.
func (a *Alphabet) ID(s string) int {
	if id, ok := a.ids[s]; ok {
		return id
	}
	return -1
}

// Len returns the number of entries.
func (a *Alphabet) Len() int { return len(a.names) }

// Event is one labelled training example.
type Event struct {
	Label    int
	Features []string
}

// Options controls training.
type Options struct {
	// Iterations is the number of passes over the training events.
	Iterations   int
	LearningRate float64
	// L2 is the weight decay applied to every updated weight.
	L2 float64
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{Iterations: 200, LearningRate: 0.5, L2: 0.001}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Iterations <= 0 {
		o.Iterations = d.Iterations
	}
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	if o.L2 < 0 {
		o.L2 = 0
	}
	return o
}

// Model is a trained classifier. It is safe for concurrent use.
type Model struct {
	labels   []int
	features *Alphabet
	weights  []float64
}

// Prediction is a label with its probability.
type Prediction struct {
	Label       int
	Probability float64
}

// Train fits a model to events with stochastic gradient descent. Events are
// visited in their given order so training is deterministic.
func Train(events []Event, opts Options) *Model {
	opts = opts.withDefaults()

	m := &Model{features: NewAlphabet()}
	labelIndex := make(map[int]int)
	encoded := make([][]int, len(events))
	gold := make([]int, len(events))
	for i, ev := range events {
		li, ok := labelIndex[ev.Label]
		if !ok {
			li = len(m.labels)
			labelIndex[ev.Label] = li
			m.labels = append(m.labels, ev.Label)
		}
		gold[i] = li
		encoded[i] = m.encodeForTraining(ev.Features)
	}

	nl := len(m.labels)
	m.weights = make([]float64, m.features.Len()*nl)
	if nl < 2 {
		return m
	}

	probs := make([]float64, nl)
	for iter := 0; iter < opts.Iterations; iter++ {
		rate := opts.LearningRate / (1 + float64(iter)/float64(opts.Iterations))
		for i, feats := range encoded {
			m.distribution(feats, probs)
			for y := 0; y < nl; y++ {
				g := probs[y]
				if y == gold[i] {
					g -= 1
				}
				for _, f := range feats {
					w := &m.weights[f*nl+y]
					*w -= rate * (g + opts.L2*(*w))
				}
			}
		}
	}
	return m
}

func (m *Model) encodeForTraining(features []string) []int {
	seen := make(map[int]bool, len(features))
	out := make([]int, 0, len(features))
	for _, f := range features {
		id := m.features.Add(f)
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (m *Model) encode(features []string) []int {
	seen := make(map[int]bool, len(features))
	out := make([]int, 0, len(features))
	for _, f := range features {
		id := m.features.ID(f)
		if id < 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// distribution writes the softmax over labels into probs.
func (m *Model) distribution(feats []int, probs []float64) {
	nl := len(m.labels)
	maxScore := math.Inf(-1)
	for y := 0; y < nl; y++ {
		s := 0.0
		for _, f := range feats {
			s += m.weights[f*nl+y]
		}
		probs[y] = s
		if s > maxScore {
			maxScore = s
		}
	}
	sum := 0.0
	for y := range probs[:nl] {
		probs[y] = math.Exp(probs[y] - maxScore)
		sum += probs[y]
	}
	for y := range probs[:nl] {
		probs[y] /= sum
	}
}

// Labels returns the labels seen in training in first-seen order.
func (m *Model) Labels() []int {
	return append([]int(nil), m.labels...)
}

// Classify returns the most probable label for features. Ties go to the
// label seen first in training. ok is false when the model has no labels.
// Unknown features are ignored.
func (m *Model) Classify(features []string) (Prediction, bool) {
	if m == nil || len(m.labels) == 0 {
		return Prediction{}, false
	}
	if len(m.labels) == 1 {
		return Prediction{Label: m.labels[0], Probability: 1}, true
	}
	probs := make([]float64, len(m.labels))
	m.distribution(m.encode(features), probs)
	best := 0
	for y := 1; y < len(probs); y++ {
		if probs[y] > probs[best] {
			best = y
		}
	}
	return Prediction{Label: m.labels[best], Probability: probs[best]}, true
}
