package ddqn

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Checkpoint is the serialized policy bundle exchanged between the offline
// trainer and the live controller: both networks, optimizer state, epsilon
// and step counters.
type Checkpoint struct {
	Sizes         []int         `json:"sizes"`
	Policy        NetworkData   `json:"policy"`
	Target        NetworkData   `json:"target"`
	Optimizer     OptimizerData `json:"optimizer"`
	Epsilon       float64       `json:"epsilon"`
	Steps         int64         `json:"steps"`
	TrainingSteps int64         `json:"training_steps"`
	SavedAt       time.Time     `json:"saved_at"`
}

// NetworkData holds one network's parameters layer by layer
type NetworkData struct {
	Weights [][]float64 `json:"weights"` // row-major, rows = out, cols = in
	Biases  [][]float64 `json:"biases"`
}

// OptimizerData holds the Adam moment estimates and step count
type OptimizerData struct {
	Step    int         `json:"step"`
	MWeight [][]float64 `json:"m_weight"`
	MBias   [][]float64 `json:"m_bias"`
	VWeight [][]float64 `json:"v_weight"`
	VBias   [][]float64 `json:"v_bias"`
}

func dumpNetwork(n *Network) NetworkData {
	d := NetworkData{
		Weights: make([][]float64, len(n.weights)),
		Biases:  make([][]float64, len(n.biases)),
	}
	for l := range n.weights {
		r, c := n.weights[l].Dims()
		buf := make([]float64, r*c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				buf[i*c+j] = n.weights[l].At(i, j)
			}
		}
		d.Weights[l] = buf
		bias := make([]float64, n.biases[l].Len())
		for i := range bias {
			bias[i] = n.biases[l].AtVec(i)
		}
		d.Biases[l] = bias
	}
	return d
}

func restoreNetwork(n *Network, d NetworkData) error {
	if len(d.Weights) != len(n.weights) || len(d.Biases) != len(n.biases) {
		return fmt.Errorf("layer count mismatch: checkpoint has %d layers, network has %d",
			len(d.Weights), len(n.weights))
	}
	for l := range n.weights {
		r, c := n.weights[l].Dims()
		if len(d.Weights[l]) != r*c {
			return fmt.Errorf("layer %d weight size mismatch: %d values for %dx%d", l, len(d.Weights[l]), r, c)
		}
		if len(d.Biases[l]) != n.biases[l].Len() {
			return fmt.Errorf("layer %d bias size mismatch: %d values for %d", l, len(d.Biases[l]), n.biases[l].Len())
		}
		n.weights[l] = mat.NewDense(r, c, append([]float64(nil), d.Weights[l]...))
		n.biases[l] = mat.NewVecDense(len(d.Biases[l]), append([]float64(nil), d.Biases[l]...))
	}
	return nil
}

func dumpGradients(g *gradients) ([][]float64, [][]float64) {
	ws := make([][]float64, len(g.w))
	bs := make([][]float64, len(g.b))
	for l := range g.w {
		r, c := g.w[l].Dims()
		buf := make([]float64, r*c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				buf[i*c+j] = g.w[l].At(i, j)
			}
		}
		ws[l] = buf
		bias := make([]float64, g.b[l].Len())
		for i := range bias {
			bias[i] = g.b[l].AtVec(i)
		}
		bs[l] = bias
	}
	return ws, bs
}

func restoreGradients(g *gradients, ws, bs [][]float64) error {
	if len(ws) != len(g.w) || len(bs) != len(g.b) {
		return fmt.Errorf("optimizer state layer count mismatch")
	}
	for l := range g.w {
		r, c := g.w[l].Dims()
		if len(ws[l]) != r*c || len(bs[l]) != g.b[l].Len() {
			return fmt.Errorf("optimizer state layer %d shape mismatch", l)
		}
		g.w[l] = mat.NewDense(r, c, append([]float64(nil), ws[l]...))
		g.b[l] = mat.NewVecDense(len(bs[l]), append([]float64(nil), bs[l]...))
	}
	return nil
}

// Snapshot captures the agent's full state for persistence
func (a *Agent) Snapshot() *Checkpoint {
	a.mu.RLock()
	defer a.mu.RUnlock()

	mw, mb := dumpGradients(a.opt.m)
	vw, vb := dumpGradients(a.opt.v)

	return &Checkpoint{
		Sizes:  append([]int(nil), a.policy.sizes...),
		Policy: dumpNetwork(a.policy),
		Target: dumpNetwork(a.target),
		Optimizer: OptimizerData{
			Step:    a.opt.t,
			MWeight: mw,
			MBias:   mb,
			VWeight: vw,
			VBias:   vb,
		},
		Epsilon:       a.epsilon,
		Steps:         a.steps,
		TrainingSteps: a.trainingSteps,
		SavedAt:       time.Now(),
	}
}

// Restore loads a checkpoint into the agent. On any incompatibility the
// agent is left unchanged and an error is returned; callers are expected to
// warn and continue with the current (randomly initialized) weights.
func (a *Agent) Restore(cp *Checkpoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := checkTopology(cp.Sizes, a.policy.sizes); err != nil {
		return fmt.Errorf("incompatible topology (checkpoint %v, agent %v): %w", cp.Sizes, a.policy.sizes, err)
	}

	policy := a.policy.Clone()
	target := a.target.Clone()
	if err := restoreNetwork(policy, cp.Policy); err != nil {
		return fmt.Errorf("policy network: %w", err)
	}
	if err := restoreNetwork(target, cp.Target); err != nil {
		return fmt.Errorf("target network: %w", err)
	}

	opt := NewAdam(policy, a.cfg.LearningRate)
	opt.t = cp.Optimizer.Step
	if err := restoreGradients(opt.m, cp.Optimizer.MWeight, cp.Optimizer.MBias); err != nil {
		return fmt.Errorf("optimizer first moments: %w", err)
	}
	if err := restoreGradients(opt.v, cp.Optimizer.VWeight, cp.Optimizer.VBias); err != nil {
		return fmt.Errorf("optimizer second moments: %w", err)
	}

	a.policy = policy
	a.target = target
	a.opt = opt
	a.epsilon = cp.Epsilon
	a.steps = cp.Steps
	a.trainingSteps = cp.TrainingSteps
	return nil
}

// Save writes the agent's checkpoint bundle to path as JSON
func (a *Agent) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	data, err := json.Marshal(a.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a checkpoint bundle from path and restores it into the agent
func (a *Agent) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return a.Restore(&cp)
}
