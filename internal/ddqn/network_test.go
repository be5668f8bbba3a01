package ddqn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetwork_LinearForward(t *testing.T) {
	n := NewNetwork(2, 2, nil, rand.New(rand.NewSource(1)))
	n.weights[0] = mat.NewDense(2, 2, []float64{
		1, 0,
		0, 2,
	})
	n.biases[0] = mat.NewVecDense(2, []float64{0.5, -0.5})

	q := n.Forward([]float64{3, 4})
	require.Len(t, q, 2)
	assert.InDelta(t, 3.5, q[0], 1e-12)
	assert.InDelta(t, 7.5, q[1], 1e-12)
}

func TestNetwork_ReLUHiddenLayer(t *testing.T) {
	n := NewNetwork(1, 1, []int{2}, rand.New(rand.NewSource(1)))
	// One hidden unit passes the input through, the other is driven negative
	n.weights[0] = mat.NewDense(2, 1, []float64{1, -1})
	n.biases[0] = mat.NewVecDense(2, nil)
	n.weights[1] = mat.NewDense(1, 2, []float64{1, 1})
	n.biases[1] = mat.NewVecDense(1, nil)

	q := n.Forward([]float64{2})
	// The negative pre-activation is clipped to zero by ReLU
	assert.InDelta(t, 2.0, q[0], 1e-12)
}

func TestNetwork_CloneIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n := NewNetwork(4, 3, []int{8}, rng)
	c := n.Clone()

	state := []float64{0.1, 0.2, 0.3, 0.4}
	assert.Equal(t, n.Forward(state), c.Forward(state), "clone starts identical")

	n.weights[0].Set(0, 0, 99)
	assert.NotEqual(t, n.Forward(state), c.Forward(state), "mutating the original must not touch the clone")
}

func TestNetwork_XavierInitBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := NewNetwork(8, 3, []int{16}, rng)

	for l := range n.weights {
		in, out := n.sizes[l], n.sizes[l+1]
		limit := math.Sqrt(6.0 / float64(in+out))
		r, c := n.weights[l].Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := n.weights[l].At(i, j)
				assert.LessOrEqual(t, math.Abs(v), limit, "weight outside Xavier bound at layer %d", l)
			}
		}
		for i := 0; i < n.biases[l].Len(); i++ {
			assert.Zero(t, n.biases[l].AtVec(i), "biases start at zero")
		}
	}
}

func TestCheckTopology(t *testing.T) {
	assert.NoError(t, checkTopology([]int{8, 16, 3}, []int{8, 16, 3}))
	assert.Error(t, checkTopology([]int{8, 3}, []int{8, 16, 3}), "layer counts must match")
	assert.Error(t, checkTopology([]int{8, 16, 3}, []int{8, 8, 3}), "layer widths must match")
}

func TestGradients_ClipRescalesLargeNorm(t *testing.T) {
	n := NewNetwork(2, 2, nil, rand.New(rand.NewSource(1)))
	g := newGradients(n)
	g.w[0].Set(0, 0, 30)
	g.w[0].Set(1, 1, 40)

	g.clip(1.0)

	var sum float64
	sum += math.Pow(mat.Norm(g.w[0], 2), 2)
	sum += math.Pow(mat.Norm(g.b[0], 2), 2)
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-12, "clipped global norm equals the max norm")

	// Direction is preserved
	assert.InDelta(t, 30.0/40.0, g.w[0].At(0, 0)/g.w[0].At(1, 1), 1e-12)
}

func TestGradients_ClipLeavesSmallNormAlone(t *testing.T) {
	n := NewNetwork(2, 2, nil, rand.New(rand.NewSource(1)))
	g := newGradients(n)
	g.w[0].Set(0, 0, 0.3)

	g.clip(1.0)
	assert.Equal(t, 0.3, g.w[0].At(0, 0), "gradients under the cap are untouched")
}

func TestAdam_StepMovesAgainstGradient(t *testing.T) {
	n := NewNetwork(2, 2, nil, rand.New(rand.NewSource(1)))
	n.weights[0] = mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	opt := NewAdam(n, 0.01)

	g := newGradients(n)
	g.w[0].Set(0, 0, 1.0)

	before := n.weights[0].At(0, 0)
	opt.Step(n, g)
	assert.Less(t, n.weights[0].At(0, 0), before, "positive gradient decreases the weight")
}
