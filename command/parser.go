// Package command turns console command lines into generation requests.
//
// A command line is tokenized the way a shell would split it (quotes group
// words) and then parsed as a set of --flag value pairs:
//
//	--image scene.png --prompt "a cat on a sofa" --count 2 --dimensions 800,600
package command

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/pflag"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/generation"
)

// ErrParse matches every *ParseError via errors.Is.
var ErrParse = errors.New("command: parse error")

// ParseError is returned for lines that cannot be turned into a request:
// unknown or missing flags, malformed values, stray arguments.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Flag names accepted on a command line.
const (
	FlagImage      = "image"
	FlagPrompt     = "prompt"
	FlagSampler    = "sampler"
	FlagScheduler  = "scheduler"
	FlagDimensions = "dimensions"
	FlagDenoise    = "denoise"
	FlagSteps      = "steps"
	FlagCFG        = "cfg"
	FlagCount      = "count"
)

var requiredFlags = []string{FlagImage, FlagPrompt}

// Parser converts command lines to requests. Defaults supplies the value of
// every flag that is omitted; the zero Parser is not usable, use NewParser.
type Parser struct {
	Defaults generation.Params
}

// NewParser returns a Parser using generation.DefaultParams.
func NewParser() *Parser {
	return &Parser{Defaults: generation.DefaultParams()}
}

type flagValues struct {
	image      string
	prompt     string
	sampler    string
	scheduler  string
	dimensions string
	denoise    float64
	steps      int
	cfg        float64
	count      int
}

func (p *Parser) addFlags(fs *pflag.FlagSet, v *flagValues) {
	d := p.Defaults
	fs.SortFlags = false
	fs.StringVar(&v.image, FlagImage, d.Image, "File name or file path of the base image (required)")
	fs.StringVar(&v.prompt, FlagPrompt, d.PositivePrompt, "The positive prompt used for image generation (required)")
	fs.StringVar(&v.sampler, FlagSampler, d.Sampler, "Name of the sampler")
	fs.StringVar(&v.scheduler, FlagScheduler, d.Scheduler, "Type of scheduler")
	fs.StringVar(&v.dimensions, FlagDimensions, d.Dimensions.String(), "Final image dimensions in format: x,y")
	fs.Float64Var(&v.denoise, FlagDenoise, d.Denoise, "Balance between noise reduction and detail preservation (0-1)")
	fs.IntVar(&v.steps, FlagSteps, d.Steps, "Sampling steps")
	fs.Float64Var(&v.cfg, FlagCFG, d.CFG, "Creativity level of the generation")
	fs.IntVar(&v.count, FlagCount, d.Iterations, "Number of images to generate")
}

// Parse tokenizes line and builds a validated request from it. Errors are
// either *ParseError or *generation.ValidationError.
func (p *Parser) Parse(line string) (generation.Request, error) {
	if err := checkEscapes(line); err != nil {
		return generation.Request{}, err
	}
	sp := shellwords.NewParser()
	args, err := sp.Parse(line)
	if err != nil {
		return generation.Request{}, &ParseError{Reason: "cannot tokenize command", Err: err}
	}
	if sp.Position >= 0 {
		// the tokenizer stops at an unquoted shell operator
		rest := []rune(line)
		if sp.Position < len(rest) {
			rest = rest[sp.Position:]
		}
		return generation.Request{}, &ParseError{
			Reason: fmt.Sprintf("unexpected %q; quote values containing ; | & < or >", strings.TrimSpace(string(rest))),
		}
	}
	return p.ParseArgs(args)
}

// escapable are the characters a backslash may precede outside single
// quotes. Any other backslash would be dropped by the tokenizer, turning
// C:\imgs\a.png into C:imgsa.png.
const escapable = "\\\"' \t;&|<>$`"

func checkEscapes(line string) error {
	var single, double bool
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; {
		case r == '\'' && !double:
			single = !single
		case r == '"' && !single:
			double = !double
		case r == '\\' && !single:
			if i+1 < len(runes) && strings.ContainsRune(escapable, runes[i+1]) {
				i++
				continue
			}
			return &ParseError{Reason: "unquoted backslash would be dropped; use forward slashes or single quotes for paths"}
		}
	}
	return nil
}

// ParseArgs builds a request from already tokenized arguments.
func (p *Parser) ParseArgs(args []string) (generation.Request, error) {
	if len(args) == 0 {
		return generation.Request{}, &ParseError{Reason: "empty command"}
	}

	fs := pflag.NewFlagSet("command", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	b := p.Bind(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return generation.Request{}, &ParseError{Reason: "help requested"}
		}
		return generation.Request{}, &ParseError{Reason: "invalid flags", Err: err}
	}
	if rest := fs.Args(); len(rest) > 0 {
		return generation.Request{}, &ParseError{Reason: fmt.Sprintf("unexpected argument %q", rest[0])}
	}
	return b.Request()
}

// Binding ties the command grammar to a flag set owned by the caller, such
// as a cobra command's.
type Binding struct {
	parser *Parser
	fs     *pflag.FlagSet
	v      flagValues
}

// Bind registers the command flags on fs. Call Request after fs is parsed.
func (p *Parser) Bind(fs *pflag.FlagSet) *Binding {
	b := &Binding{parser: p, fs: fs}
	p.addFlags(fs, &b.v)
	return b
}

// Request validates the parsed flags. Omitted flags take the parser's
// current Defaults.
func (b *Binding) Request() (generation.Request, error) {
	for _, name := range requiredFlags {
		if !b.fs.Changed(name) {
			return generation.Request{}, &ParseError{Reason: fmt.Sprintf("missing required flag --%s", name)}
		}
	}

	v := b.v
	params := b.parser.Defaults
	params.Image = v.image
	params.PositivePrompt = v.prompt
	if b.fs.Changed(FlagSampler) {
		params.Sampler = v.sampler
	}
	if b.fs.Changed(FlagScheduler) {
		params.Scheduler = v.scheduler
	}
	if b.fs.Changed(FlagDenoise) {
		params.Denoise = v.denoise
	}
	if b.fs.Changed(FlagSteps) {
		params.Steps = v.steps
	}
	if b.fs.Changed(FlagCFG) {
		params.CFG = v.cfg
	}
	if b.fs.Changed(FlagCount) {
		params.Iterations = v.count
	}
	if b.fs.Changed(FlagDimensions) {
		dims, err := generation.ParseDimensions(v.dimensions)
		if err != nil {
			return generation.Request{}, &ParseError{Reason: "invalid --dimensions", Err: err}
		}
		params.Dimensions = dims
	}

	return generation.New(params)
}

// Usage returns the flag table for the command grammar.
func (p *Parser) Usage() string {
	var buf bytes.Buffer
	var v flagValues
	fs := pflag.NewFlagSet("command", pflag.ContinueOnError)
	fs.SetOutput(&buf)
	p.addFlags(fs, &v)
	fs.PrintDefaults()
	return buf.String()
}
