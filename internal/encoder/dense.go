package encoder

import (
	"github.com/23skdu/longbow-bowyer/internal/activation"
	"github.com/23skdu/longbow-bowyer/internal/device"
)

// Dense is a learnable affine transform with an optional in-place
// activation. All projections in the model (query/key/value, attention
// output, feed-forward, pooler) are Dense instances.
type Dense struct {
	Backend device.Backend
	Weight  device.Tensor // [in, out]
	Bias    device.Tensor // [1, out]
	Act     activation.Func
	out     int
}

func NewDense(backend device.Backend, in, out int, act activation.Func, init *initializer) *Dense {
	d := &Dense{
		Backend: backend,
		Weight:  backend.NewTensor(in, out, nil),
		Bias:    backend.NewTensor(1, out, nil),
		Act:     act,
		out:     out,
	}
	init.fill(d.Weight)
	return d
}

// Forward computes x*W + b (activated) into a pooled tensor.
func (d *Dense) Forward(x device.Tensor) device.Tensor {
	r, _ := x.Dims()
	out := d.Backend.GetTensor(r, d.out)
	out.Mul(x, d.Weight)
	out.AddBias(d.Bias)
	if d.Act != nil {
		d.Act(out.Data())
	}
	return out
}
