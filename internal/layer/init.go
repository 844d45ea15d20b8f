package layer

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Initializer fills a freshly allocated weight slice.
type Initializer interface {
	Init(w []float64, fanIn, fanOut int)
}

// NewSource returns the seeded random source used by initializers.
// Sharing one source across layers keeps a whole model reproducible from a single seed.
func NewSource(seed int64) rand.Source {
	return rand.NewSource(uint64(seed))
}

// GlorotUniform draws from U(-l, l) with l = sqrt(6 / (fanIn + fanOut)).
type GlorotUniform struct {
	Src rand.Source
}

func NewGlorotUniform(src rand.Source) GlorotUniform {
	return GlorotUniform{Src: src}
}

func (g GlorotUniform) Init(w []float64, fanIn, fanOut int) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	dist := distuv.Uniform{Min: -limit, Max: limit, Src: g.Src}
	for i := range w {
		w[i] = dist.Rand()
	}
}

// truncatedNormalStd corrects the stddev of a normal truncated at two sigmas.
const truncatedNormalStd = 0.87962566103423978

// VarianceScaling draws from a normal truncated at two standard deviations,
// with variance Scale / fanIn.
type VarianceScaling struct {
	Scale float64
	Src   rand.Source
}

func NewVarianceScaling(src rand.Source) VarianceScaling {
	return VarianceScaling{Scale: 1, Src: src}
}

func (v VarianceScaling) Init(w []float64, fanIn, fanOut int) {
	scale := v.Scale
	if scale <= 0 {
		scale = 1
	}
	sigma := math.Sqrt(scale/float64(max(fanIn, 1))) / truncatedNormalStd
	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: v.Src}
	for i := range w {
		x := dist.Rand()
		for math.Abs(x) > 2*sigma {
			x = dist.Rand()
		}
		w[i] = x
	}
}
