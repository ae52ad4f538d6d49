package command

import (
	"strconv"
	"strings"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/generation"
)

// Format renders params as a command line that Parse turns back into the
// same request. Values equal to the parser's defaults are left out, and so
// is the negative prompt, which has no flag.
func (p *Parser) Format(params generation.Params) string {
	d := p.Defaults
	args := []string{
		"--" + FlagImage, quote(params.Image),
		"--" + FlagPrompt, quote(params.PositivePrompt),
	}
	add := func(flag, value, def string) {
		if value != def {
			args = append(args, "--"+flag, quote(value))
		}
	}
	add(FlagSampler, params.Sampler, d.Sampler)
	add(FlagScheduler, params.Scheduler, d.Scheduler)
	add(FlagDimensions, params.Dimensions.String(), d.Dimensions.String())
	add(FlagDenoise, formatFloat(params.Denoise), formatFloat(d.Denoise))
	add(FlagSteps, strconv.Itoa(params.Steps), strconv.Itoa(d.Steps))
	add(FlagCFG, formatFloat(params.CFG), formatFloat(d.CFG))
	add(FlagCount, strconv.Itoa(params.Iterations), strconv.Itoa(d.Iterations))
	return strings.Join(args, " ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// quote single-quotes s when the tokenizer would otherwise split or
// unescape it.
func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\r\n'\"\\$`|&;<>()") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
