package noise

import (
	"fmt"
	"math"

	slam "github.com/milosgajdos/go-slam"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Diagonal is a noise model with independent per-dimension standard deviations
type Diagonal struct {
	// sigmas are standard deviations
	sigmas []float64
	// invSigmas caches 1/sigma
	invSigmas []float64
}

// NewDiagonal creates new diagonal noise model from standard deviations sigmas.
// It returns error wrapping slam.ErrInvalidNoiseModel if no sigma is given
// or if any sigma is not a finite positive number.
func NewDiagonal(sigmas ...float64) (*Diagonal, error) {
	if len(sigmas) == 0 {
		return nil, fmt.Errorf("%w: no sigmas given", slam.ErrInvalidNoiseModel)
	}

	s := make([]float64, len(sigmas))
	inv := make([]float64, len(sigmas))
	for i, sigma := range sigmas {
		if !(sigma > 0) || math.IsInf(sigma, 0) {
			return nil, fmt.Errorf("%w: sigma[%d] = %v", slam.ErrInvalidNoiseModel, i, sigma)
		}
		s[i] = sigma
		inv[i] = 1 / sigma
	}

	return &Diagonal{
		sigmas:    s,
		invSigmas: inv,
	}, nil
}

// NewVariances creates new diagonal noise model from variances vars.
// It returns error wrapping slam.ErrInvalidNoiseModel if any variance is not positive.
func NewVariances(vars ...float64) (*Diagonal, error) {
	sigmas := make([]float64, len(vars))
	for i, v := range vars {
		if !(v > 0) {
			return nil, fmt.Errorf("%w: variance[%d] = %v", slam.ErrInvalidNoiseModel, i, v)
		}
		sigmas[i] = math.Sqrt(v)
	}

	return NewDiagonal(sigmas...)
}

// Dim returns noise model dimension
func (d *Diagonal) Dim() int {
	return len(d.sigmas)
}

// Sigmas returns standard deviations
func (d *Diagonal) Sigmas() []float64 {
	s := make([]float64, len(d.sigmas))
	copy(s, d.sigmas)

	return s
}

// Whiten divides residual r elementwise by sigmas.
// It panics if r length differs from the model dimension.
func (d *Diagonal) Whiten(r []float64) []float64 {
	w := make([]float64, len(r))
	floats.MulTo(w, r, d.invSigmas)

	return w
}

// WhitenMatrix divides the i-th row of m by the i-th sigma.
func (d *Diagonal) WhitenMatrix(m mat.Matrix) *mat.Dense {
	w := mat.DenseCopyOf(m)
	rows, _ := w.Dims()
	for i := 0; i < rows; i++ {
		floats.Scale(d.invSigmas[i], w.RawRowView(i))
	}

	return w
}

// Cov returns diagonal covariance matrix
func (d *Diagonal) Cov() mat.Symmetric {
	cov := mat.NewSymDense(len(d.sigmas), nil)
	for i, s := range d.sigmas {
		cov.SetSym(i, i, s*s)
	}

	return cov
}

// String implements the Stringer interface.
func (d *Diagonal) String() string {
	return fmt.Sprintf("Diagonal{Sigmas=%v}", d.sigmas)
}

// Full is a noise model with a general (full) covariance matrix
type Full struct {
	// cov is noise covariance
	cov *mat.SymDense
	// whiten is the inverse of the lower Cholesky factor of cov
	whiten *mat.TriDense
}

// NewFull creates new full covariance noise model.
// It returns error wrapping slam.ErrInvalidNoiseModel if cov is not positive definite.
func NewFull(cov mat.Symmetric) (*Full, error) {
	n := cov.SymmetricDim()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty covariance", slam.ErrInvalidNoiseModel)
	}

	c := mat.NewSymDense(n, nil)
	c.CopySym(cov)

	var chol mat.Cholesky
	if ok := chol.Factorize(c); !ok {
		return nil, fmt.Errorf("%w: covariance is not positive definite", slam.ErrInvalidNoiseModel)
	}

	l := mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(l)

	w := mat.NewTriDense(n, mat.Lower, nil)
	if err := w.InverseTri(l); err != nil {
		return nil, fmt.Errorf("%w: %v", slam.ErrInvalidNoiseModel, err)
	}

	return &Full{
		cov:    c,
		whiten: w,
	}, nil
}

// Dim returns noise model dimension
func (f *Full) Dim() int {
	return f.cov.SymmetricDim()
}

// Whiten returns inv(L)*r where cov = L*L'.
func (f *Full) Whiten(r []float64) []float64 {
	w := mat.NewVecDense(len(r), nil)
	w.MulVec(f.whiten, mat.NewVecDense(len(r), append([]float64(nil), r...)))

	return w.RawVector().Data
}

// WhitenMatrix returns inv(L)*m where cov = L*L'.
func (f *Full) WhitenMatrix(m mat.Matrix) *mat.Dense {
	w := &mat.Dense{}
	w.Mul(f.whiten, m)

	return w
}

// Cov returns noise covariance
func (f *Full) Cov() mat.Symmetric {
	cov := mat.NewSymDense(f.cov.SymmetricDim(), nil)
	cov.CopySym(f.cov)

	return cov
}

// String implements the Stringer interface.
func (f *Full) String() string {
	return fmt.Sprintf("Full{\nCov=%v\n}", mat.Formatted(f.cov, mat.Prefix("    "), mat.Squeeze()))
}
