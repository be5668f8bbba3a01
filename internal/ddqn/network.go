package ddqn

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Network is a fully connected Q-network: ReLU hidden layers and a linear
// output head, one output per action. Policy and target networks are two
// instances of this type with identical topology.
type Network struct {
	sizes   []int // input, hidden..., output
	weights []*mat.Dense
	biases  []*mat.VecDense
}

// NewNetwork builds a network with Xavier-uniform initialized weights.
// hidden may be empty, in which case the network is a single linear layer.
func NewNetwork(stateDim, actionDim int, hidden []int, rng *rand.Rand) *Network {
	sizes := make([]int, 0, len(hidden)+2)
	sizes = append(sizes, stateDim)
	sizes = append(sizes, hidden...)
	sizes = append(sizes, actionDim)

	n := &Network{
		sizes:   sizes,
		weights: make([]*mat.Dense, len(sizes)-1),
		biases:  make([]*mat.VecDense, len(sizes)-1),
	}

	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		limit := math.Sqrt(6.0 / float64(in+out))
		w := make([]float64, out*in)
		for i := range w {
			w[i] = (rng.Float64()*2 - 1) * limit
		}
		n.weights[l] = mat.NewDense(out, in, w)
		n.biases[l] = mat.NewVecDense(out, nil)
	}

	return n
}

// Forward computes Q-values for a single state
func (n *Network) Forward(x []float64) []float64 {
	acts, _ := n.forwardCached(x)
	out := acts[len(acts)-1]
	res := make([]float64, out.Len())
	for i := 0; i < out.Len(); i++ {
		res[i] = out.AtVec(i)
	}
	return res
}

// forwardCached runs a forward pass keeping per-layer activations and
// pre-activations for backpropagation. acts[0] is the input itself.
func (n *Network) forwardCached(x []float64) (acts, preacts []*mat.VecDense) {
	acts = make([]*mat.VecDense, len(n.sizes))
	preacts = make([]*mat.VecDense, len(n.weights))

	in := mat.NewVecDense(len(x), nil)
	for i, v := range x {
		in.SetVec(i, v)
	}
	acts[0] = in

	for l, w := range n.weights {
		out := mat.NewVecDense(n.sizes[l+1], nil)
		out.MulVec(w, acts[l])
		out.AddVec(out, n.biases[l])
		preacts[l] = mat.VecDenseCopyOf(out)

		// ReLU on hidden layers, linear output head
		if l < len(n.weights)-1 {
			for i := 0; i < out.Len(); i++ {
				if out.AtVec(i) < 0 {
					out.SetVec(i, 0)
				}
			}
		}
		acts[l+1] = out
	}

	return acts, preacts
}

// backward accumulates parameter gradients for one sample into g, given the
// gradient of the loss with respect to the network output.
func (n *Network) backward(acts, preacts []*mat.VecDense, outGrad []float64, g *gradients) {
	last := len(n.weights) - 1
	delta := mat.NewVecDense(len(outGrad), nil)
	for i, v := range outGrad {
		delta.SetVec(i, v)
	}

	for l := last; l >= 0; l-- {
		g.w[l].RankOne(g.w[l], 1.0, delta, acts[l])
		g.b[l].AddVec(g.b[l], delta)

		if l == 0 {
			break
		}

		prev := mat.NewVecDense(n.sizes[l], nil)
		prev.MulVec(n.weights[l].T(), delta)
		// ReLU derivative of the previous hidden layer
		for i := 0; i < prev.Len(); i++ {
			if preacts[l-1].AtVec(i) <= 0 {
				prev.SetVec(i, 0)
			}
		}
		delta = prev
	}
}

// CopyFrom hard-copies all parameters of src into n. Topologies must match.
func (n *Network) CopyFrom(src *Network) {
	for l := range n.weights {
		n.weights[l].Copy(src.weights[l])
		n.biases[l].CopyVec(src.biases[l])
	}
}

// Clone returns a deep copy of the network
func (n *Network) Clone() *Network {
	c := &Network{
		sizes:   append([]int(nil), n.sizes...),
		weights: make([]*mat.Dense, len(n.weights)),
		biases:  make([]*mat.VecDense, len(n.biases)),
	}
	for l := range n.weights {
		c.weights[l] = mat.DenseCopyOf(n.weights[l])
		c.biases[l] = mat.VecDenseCopyOf(n.biases[l])
	}
	return c
}

// gradients mirror the parameter shapes of a Network
type gradients struct {
	w []*mat.Dense
	b []*mat.VecDense
}

func newGradients(n *Network) *gradients {
	g := &gradients{
		w: make([]*mat.Dense, len(n.weights)),
		b: make([]*mat.VecDense, len(n.biases)),
	}
	for l := range n.weights {
		r, c := n.weights[l].Dims()
		g.w[l] = mat.NewDense(r, c, nil)
		g.b[l] = mat.NewVecDense(n.biases[l].Len(), nil)
	}
	return g
}

// clip rescales all gradients so their global L2 norm does not exceed maxNorm
func (g *gradients) clip(maxNorm float64) {
	var sum float64
	for l := range g.w {
		sum += math.Pow(mat.Norm(g.w[l], 2), 2)
		sum += math.Pow(mat.Norm(g.b[l], 2), 2)
	}
	norm := math.Sqrt(sum)
	if norm <= maxNorm || norm == 0 {
		return
	}
	scale := maxNorm / norm
	for l := range g.w {
		g.w[l].Scale(scale, g.w[l])
		g.b[l].ScaleVec(scale, g.b[l])
	}
}

// Adam implements the Adam optimizer over a Network's parameters
type Adam struct {
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	t           int
	m           *gradients
	v           *gradients
}

// NewAdam creates an optimizer bound to the given network's topology
func NewAdam(n *Network, lr float64) *Adam {
	return &Adam{
		lr:          lr,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		weightDecay: 1e-5,
		m:           newGradients(n),
		v:           newGradients(n),
	}
}

// Step applies one optimizer update to the network from the given gradients
func (a *Adam) Step(n *Network, g *gradients) {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))

	for l := range n.weights {
		rows, cols := n.weights[l].Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				grad := g.w[l].At(r, c) + a.weightDecay*n.weights[l].At(r, c)
				m := a.beta1*a.m.w[l].At(r, c) + (1-a.beta1)*grad
				v := a.beta2*a.v.w[l].At(r, c) + (1-a.beta2)*grad*grad
				a.m.w[l].Set(r, c, m)
				a.v.w[l].Set(r, c, v)
				update := a.lr * (m / bc1) / (math.Sqrt(v/bc2) + a.eps)
				n.weights[l].Set(r, c, n.weights[l].At(r, c)-update)
			}
		}
		for i := 0; i < n.biases[l].Len(); i++ {
			grad := g.b[l].AtVec(i)
			m := a.beta1*a.m.b[l].AtVec(i) + (1-a.beta1)*grad
			v := a.beta2*a.v.b[l].AtVec(i) + (1-a.beta2)*grad*grad
			a.m.b[l].SetVec(i, m)
			a.v.b[l].SetVec(i, v)
			update := a.lr * (m / bc1) / (math.Sqrt(v/bc2) + a.eps)
			n.biases[l].SetVec(i, n.biases[l].AtVec(i)-update)
		}
	}
}

// checkTopology verifies that two layer-size vectors describe the same shape
func checkTopology(a, b []int) error {
	if len(a) != len(b) {
		return fmt.Errorf("layer count mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			return fmt.Errorf("layer %d size mismatch: %d vs %d", i, a[i], b[i])
		}
	}
	return nil
}
