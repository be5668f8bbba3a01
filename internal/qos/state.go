package qos

// StateDim is the size of the observation vector
const StateDim = 8

// StateVector component indices
const (
	StateWorkBandwidth = iota
	StateEntertainBandwidth
	StateWorkLatency
	StateEntertainLatency
	StateWorkLoss
	StateEntertainLoss
	StateTotalUtilization
	StateTimeOfDay
)

// StateVector is the normalized network observation fed to the policy
// engine. Every component is bounded to [0,1].
type StateVector [StateDim]float64

// Slice returns the vector as a plain float64 slice
func (s StateVector) Slice() []float64 {
	out := make([]float64, StateDim)
	copy(out, s[:])
	return out
}

// Clamp bounds every component to [0,1]
func (s *StateVector) Clamp() {
	for i := range s {
		if s[i] < 0 {
			s[i] = 0
		} else if s[i] > 1 {
			s[i] = 1
		}
	}
}
