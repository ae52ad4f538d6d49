package generation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() Params {
	p := DefaultParams()
	p.Image = "scene.png"
	p.PositivePrompt = "a cat"
	return p
}

func TestNewAppliesValues(t *testing.T) {
	p := validParams()
	p.Iterations = 2

	req, err := New(p)
	require.NoError(t, err)

	assert.Equal(t, "scene.png", req.Image())
	assert.Equal(t, "a cat", req.PositivePrompt())
	assert.Equal(t, "", req.NegativePrompt())
	assert.Equal(t, "dpmpp_3m_sde_gpu", req.Sampler())
	assert.Equal(t, "exponential", req.Scheduler())
	assert.Equal(t, Dimensions{Width: 1024, Height: 1024}, req.Dimensions())
	assert.Equal(t, 1.0, req.Denoise())
	assert.Equal(t, 35, req.Steps())
	assert.Equal(t, 7.0, req.CFG())
	assert.Equal(t, 2, req.Iterations())
}

func TestNewRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		field  string
	}{
		{"empty image", func(p *Params) { p.Image = "" }, "image"},
		{"zero width", func(p *Params) { p.Dimensions.Width = 0 }, "dimensions"},
		{"negative height", func(p *Params) { p.Dimensions.Height = -4 }, "dimensions"},
		{"denoise below zero", func(p *Params) { p.Denoise = -0.1 }, "denoise"},
		{"denoise above one", func(p *Params) { p.Denoise = 1.01 }, "denoise"},
		{"denoise NaN", func(p *Params) { p.Denoise = math.NaN() }, "denoise"},
		{"zero steps", func(p *Params) { p.Steps = 0 }, "steps"},
		{"negative cfg", func(p *Params) { p.CFG = -1 }, "cfg"},
		{"zero iterations", func(p *Params) { p.Iterations = 0 }, "iterations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)

			_, err := New(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNewAcceptsBoundaries(t *testing.T) {
	p := validParams()
	p.Denoise = 0
	p.CFG = 0
	p.Steps = 1
	p.Iterations = 1
	p.PositivePrompt = ""

	_, err := New(p)
	assert.NoError(t, err)

	p.Denoise = 1
	_, err = New(p)
	assert.NoError(t, err)
}

func TestParamsCopyDoesNotAlias(t *testing.T) {
	req, err := New(validParams())
	require.NoError(t, err)

	p := req.Params()
	p.Image = "other.png"
	assert.Equal(t, "scene.png", req.Image())
}

func TestParseDimensions(t *testing.T) {
	d, err := ParseDimensions("800,600")
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 800, Height: 600}, d)

	for _, bad := range []string{"800", "abc,def", "800,600,1", "0,600", "800,-1", "", ","} {
		_, err := ParseDimensions(bad)
		assert.ErrorIs(t, err, ErrInvalidDimensions, "input %q", bad)
	}
}
