package nn

// Parameter is a trainable value buffer paired with its gradient accumulator.
//
// The owning layer allocates both slices once and never resizes them. The
// optimizer binds to them by reference: it reads Grad and updates Values in
// place.
//
// Gradients follow an accumulate-only contract. Every Backward adds into Grad;
// nothing clears it except ZeroGrad, which the caller runs before each step.
type Parameter struct {
	name   string
	values []float32
	grad   []float32
}

// NewParameter creates a parameter with zeroed values and gradient of length n.
func NewParameter(name string, n int) *Parameter {
	return &Parameter{
		name:   name,
		values: make([]float32, n),
		grad:   make([]float32, n),
	}
}

// Name returns the parameter name (e.g., "conv3d.weight").
func (p *Parameter) Name() string {
	return p.name
}

// Values returns the parameter values. The slice aliases layer storage.
func (p *Parameter) Values() []float32 {
	return p.values
}

// Grad returns the gradient accumulator. The slice aliases layer storage.
func (p *Parameter) Grad() []float32 {
	return p.grad
}

// Len returns the number of elements.
func (p *Parameter) Len() int {
	return len(p.values)
}

// ZeroGrad resets the gradient accumulator to zero.
func (p *Parameter) ZeroGrad() {
	clear(p.grad)
}
