// Package biquad provides digital biquad filters based on Robert
// Bristow-Johnson's audio EQ cookbook, used to isolate ECG frequency
// bands: low-pass for baseline wander, high-pass for noise measurement,
// band-pass for QRS energy.
package biquad

import (
	"fmt"
	"math"
)

// FilterName identifies the kind of digital filter.
type FilterName int

// FilterName constants are digital filter names.
const (
	Undefined FilterName = iota
	LowPass
	HighPass
	BandPass
)

// Filter holds the digital filter parameters and per-pass state.
type Filter struct {
	name FilterName

	// state variables
	in1  []float64
	in2  []float64
	out1 []float64
	out2 []float64

	// digital filter parameters
	a0 float64
	a1 float64
	a2 float64
	b0 float64
	b1 float64
	b2 float64

	// number of passes
	passes int

	// Pre-computed coefficients
	b0a0, b1a0, b2a0, a1a0, a2a0 float64
}

// IsZero returns true when f is not initialized.
func (f *Filter) IsZero() bool {
	return f.name == Undefined
}

// NewFilter creates a new Filter with the specified number of passes.
func NewFilter(name FilterName, a0, a1, a2, b0, b1, b2 float64, passes int) *Filter {
	f := &Filter{
		name:   name,
		a0:     a0,
		a1:     a1,
		a2:     a2,
		b0:     b0,
		b1:     b1,
		b2:     b2,
		passes: passes,
		in1:    make([]float64, passes),
		in2:    make([]float64, passes),
		out1:   make([]float64, passes),
		out2:   make([]float64, passes),
	}

	// Pre-compute coefficients
	f.b0a0 = b0 / a0
	f.b1a0 = b1 / a0
	f.b2a0 = b2 / a0
	f.a1a0 = a1 / a0
	f.a2a0 = a2 / a0

	return f
}

// Reset clears the filter state so the same filter can process another
// independent signal deterministically.
func (f *Filter) Reset() {
	for p := range f.passes {
		f.in1[p], f.in2[p] = 0, 0
		f.out1[p], f.out2[p] = 0, 0
	}
}

// ApplyBatch applies the filter to a batch of samples in place.
func (f *Filter) ApplyBatch(input []float64) {
	for p := range f.passes {
		for i := range input {
			output := f.b0a0*input[i] + f.b1a0*f.in1[p] + f.b2a0*f.in2[p] -
				f.a1a0*f.out1[p] - f.a2a0*f.out2[p]

			f.in2[p] = f.in1[p]
			f.in1[p] = input[i]
			f.out2[p] = f.out1[p]
			f.out1[p] = output

			input[i] = output
		}
	}
}

// Filtered returns a filtered copy of input, leaving input untouched.
// The filter state is reset before processing.
func (f *Filter) Filtered(input []float64) []float64 {
	f.Reset()
	out := make([]float64, len(input))
	copy(out, input)
	f.ApplyBatch(out)
	return out
}

// NewLowPass returns the low-pass filter.
//
// Parameters:
//
//   - sampleRate ... sample rate in Hz. e.g. 500.0
//   - frequency ... Cut off frequency in Hz.
//   - q ... Q value.
//   - passes ... Number of passes (1 = 12dB/oct, 2 = 24dB/oct, 4 = 48dB/oct)
//
// NOTE: q must be greater than 0. passes must be 1 or greater.
func NewLowPass(sampleRate, frequency, q float64, passes int) (*Filter, error) {
	if err := validate(sampleRate, frequency, q, passes); err != nil {
		return nil, err
	}

	w0 := 2.0 * math.Pi * frequency / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)

	return NewFilter(
		LowPass,
		1.0+alpha,
		-2.0*math.Cos(w0),
		1.0-alpha,
		(1.0-math.Cos(w0))/2.0,
		1.0-math.Cos(w0),
		(1.0-math.Cos(w0))/2.0,
		passes,
	), nil
}

// NewHighPass returns the high-pass filter.
func NewHighPass(sampleRate, frequency, q float64, passes int) (*Filter, error) {
	if err := validate(sampleRate, frequency, q, passes); err != nil {
		return nil, err
	}

	w0 := 2.0 * math.Pi * frequency / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)

	return NewFilter(
		HighPass,
		1.0+alpha,
		-2.0*math.Cos(w0),
		1.0-alpha,
		(1.0+math.Cos(w0))/2.0,
		-1.0*(1.0+math.Cos(w0)),
		(1.0+math.Cos(w0))/2.0,
		passes,
	), nil
}

// NewBandPass returns the band-pass filter.
//
// Parameters:
//
//   - sampleRate ... sample rate in Hz. e.g. 500.0
//   - frequency ... Center frequency in Hz.
//   - width ... Band width in octaves.
//   - passes ... Number of passes.
//
// NOTE: width must be greater than 0.
func NewBandPass(sampleRate, frequency, width float64, passes int) (*Filter, error) {
	if err := validate(sampleRate, frequency, width, passes); err != nil {
		return nil, err
	}

	w0 := 2.0 * math.Pi * frequency / sampleRate
	alpha := math.Sin(w0) * math.Sinh(math.Log(2.0)/2.0*width*w0/math.Sin(w0))

	return NewFilter(
		BandPass,
		1.0+alpha,
		-2.0*math.Cos(w0),
		1.0-alpha,
		alpha,
		0.0,
		-1.0*alpha,
		passes,
	), nil
}

// NewQRSBandPass returns a band-pass filter centered on the QRS energy
// band [lowHz, highHz], expressed as a center frequency and octave width.
func NewQRSBandPass(sampleRate, lowHz, highHz float64, passes int) (*Filter, error) {
	if lowHz <= 0 || highHz <= lowHz {
		return nil, fmt.Errorf("invalid QRS band [%f, %f]", lowHz, highHz)
	}
	center := math.Sqrt(lowHz * highHz)
	width := math.Log2(highHz / lowHz)
	return NewBandPass(sampleRate, center, width, passes)
}

func validate(sampleRate, frequency, qOrWidth float64, passes int) error {
	if passes < 1 {
		return fmt.Errorf("passes must be 1 or greater")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if frequency <= 0 || frequency >= sampleRate/2 {
		return fmt.Errorf("frequency %f outside (0, nyquist) for sample rate %f", frequency, sampleRate)
	}
	if qOrWidth <= 0 {
		return fmt.Errorf("q/width must be greater than 0")
	}
	return nil
}
