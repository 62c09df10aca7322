package model

import (
	"fmt"
	"math"
)

// Adam implements the Adam optimizer with L2 weight decay folded into the
// gradient, matching the classic coupled formulation.
type Adam struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	t int
	m map[*Param][]float64 // 1st moment vector
	v map[*Param][]float64 // 2nd moment vector
}

// NewAdam creates an Adam optimizer with the usual beta and epsilon defaults.
func NewAdam(lr, weightDecay float64) *Adam {
	return &Adam{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: weightDecay,
		m:           make(map[*Param][]float64),
		v:           make(map[*Param][]float64),
	}
}

// Steps returns how many updates have been applied.
func (o *Adam) Steps() int { return o.t }

// Step applies one update to params using their accumulated gradients.
func (o *Adam) Step(params []*Param) error {
	o.t++
	bc1 := 1 - math.Pow(o.Beta1, float64(o.t))
	bc2 := 1 - math.Pow(o.Beta2, float64(o.t))
	for _, p := range params {
		if p == nil || p.Value == nil || p.Grad == nil {
			continue
		}
		r, c := p.Value.Dims()
		gr, gc := p.Grad.Dims()
		if r != gr || c != gc {
			return fmt.Errorf("param %s: gradient shape %dx%d does not match %dx%d", p.Name, gr, gc, r, c)
		}
		m, ok := o.m[p]
		if !ok {
			m = make([]float64, r*c)
			o.m[p] = m
			o.v[p] = make([]float64, r*c)
		}
		v := o.v[p]

		for i := 0; i < r; i++ {
			w := p.Value.RawRowView(i)
			g := p.Grad.RawRowView(i)
			for j := range w {
				k := i*c + j
				grad := g[j] + o.WeightDecay*w[j]
				m[k] = o.Beta1*m[k] + (1-o.Beta1)*grad
				v[k] = o.Beta2*v[k] + (1-o.Beta2)*grad*grad
				mHat := m[k] / bc1
				vHat := v[k] / bc2
				w[j] -= o.LR * mHat / (math.Sqrt(vHat) + o.Eps)
			}
		}
	}
	return nil
}
