// Package generation describes a single image generation job.
package generation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrInvalidRequest    = errors.New("generation: invalid request")
	ErrInvalidDimensions = errors.New("generation: invalid dimensions")
)

// Default values applied to every optional field.
const (
	DefaultSampler    = "dpmpp_3m_sde_gpu"
	DefaultScheduler  = "exponential"
	DefaultWidth      = 1024
	DefaultHeight     = 1024
	DefaultDenoise    = 1.0
	DefaultSteps      = 35
	DefaultCFG        = 7.0
	DefaultIterations = 5
)

// ValidationError reports a request field that breaks one of the request invariants.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %q: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// Dimensions is the output image size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%d,%d", d.Width, d.Height)
}

// ParseDimensions parses the "W,H" form used on the command line.
func ParseDimensions(s string) (Dimensions, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Dimensions{}, fmt.Errorf("%w: %q is not in W,H format", ErrInvalidDimensions, s)
	}

	var vals [2]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Dimensions{}, fmt.Errorf("%w: %q is not an integer", ErrInvalidDimensions, p)
		}
		if v <= 0 {
			return Dimensions{}, fmt.Errorf("%w: %d must be positive", ErrInvalidDimensions, v)
		}
		vals[i] = v
	}
	return Dimensions{Width: vals[0], Height: vals[1]}, nil
}

// Params holds the raw, unvalidated values for a Request.
type Params struct {
	Image          string
	PositivePrompt string
	NegativePrompt string
	Sampler        string
	Scheduler      string
	Dimensions     Dimensions
	Denoise        float64
	Steps          int
	CFG            float64
	Iterations     int
}

// DefaultParams returns Params with every optional field set to its default.
// Image and PositivePrompt are left empty.
func DefaultParams() Params {
	return Params{
		Sampler:    DefaultSampler,
		Scheduler:  DefaultScheduler,
		Dimensions: Dimensions{Width: DefaultWidth, Height: DefaultHeight},
		Denoise:    DefaultDenoise,
		Steps:      DefaultSteps,
		CFG:        DefaultCFG,
		Iterations: DefaultIterations,
	}
}

// Validate checks every invariant and returns the first violation.
func (p Params) Validate() error {
	switch {
	case p.Image == "":
		return &ValidationError{Field: "image", Reason: "must not be empty"}
	case p.Dimensions.Width <= 0 || p.Dimensions.Height <= 0:
		return &ValidationError{Field: "dimensions", Reason: fmt.Sprintf("%s must be two positive integers", p.Dimensions)}
	case math.IsNaN(p.Denoise) || p.Denoise < 0 || p.Denoise > 1:
		return &ValidationError{Field: "denoise", Reason: "must be between 0 and 1 (inclusive)"}
	case p.Steps < 1:
		return &ValidationError{Field: "steps", Reason: "must be 1 or above"}
	case math.IsNaN(p.CFG) || p.CFG < 0:
		return &ValidationError{Field: "cfg", Reason: "must not be negative"}
	case p.Iterations < 1:
		return &ValidationError{Field: "iterations", Reason: "must be 1 or above"}
	}
	return nil
}

// Request is a validated generation job. It cannot be modified once built;
// pass it by value.
type Request struct {
	p Params
}

// New validates p and returns the Request built from it.
func New(p Params) (Request, error) {
	if err := p.Validate(); err != nil {
		return Request{}, err
	}
	return Request{p: p}, nil
}

func (r Request) Image() string          { return r.p.Image }
func (r Request) PositivePrompt() string { return r.p.PositivePrompt }
func (r Request) NegativePrompt() string { return r.p.NegativePrompt }
func (r Request) Sampler() string        { return r.p.Sampler }
func (r Request) Scheduler() string      { return r.p.Scheduler }
func (r Request) Dimensions() Dimensions { return r.p.Dimensions }
func (r Request) Denoise() float64       { return r.p.Denoise }
func (r Request) Steps() int             { return r.p.Steps }
func (r Request) CFG() float64           { return r.p.CFG }
func (r Request) Iterations() int        { return r.p.Iterations }

// Params returns a copy of the values the request was built from.
func (r Request) Params() Params { return r.p }

func (r Request) String() string {
	return fmt.Sprintf("image=%s sampler=%s scheduler=%s dimensions=%s denoise=%g steps=%d cfg=%g count=%d",
		r.p.Image, r.p.Sampler, r.p.Scheduler, r.p.Dimensions, r.p.Denoise, r.p.Steps, r.p.CFG, r.p.Iterations)
}
