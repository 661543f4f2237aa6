// Package argv maps command-line arguments onto the raw inputs of a
// resolution run.
//
// Variadic and choice-map options are greedy: after their flag every
// following argument is consumed until the next flag or a "--" terminator.
// Negative numbers are values, not flags.
package argv

import (
	"fmt"
	"log/slog"
	"strings"

	opts "github.com/jyscao/tail-risk"
	"github.com/jyscao/tail-risk/grammar"
	"github.com/jyscao/tail-risk/internal/errs"
	"github.com/jyscao/tail-risk/numeric"
)

// Parsed holds the option inputs and the positional arguments.
type Parsed struct {
	Inputs opts.Inputs
	Args   []string
}

type spelling struct {
	desc    *opts.Descriptor
	negated bool
}

// Parser tokenizes arguments against a set of descriptors.
type Parser struct {
	spellings map[string]spelling
	logger    *slog.Logger
}

// NewParser indexes every flag spelling of descriptors.
func NewParser(descriptors []*opts.Descriptor, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{spellings: make(map[string]spelling), logger: logger}
	for _, d := range descriptors {
		negated := make(map[string]bool)
		for _, flag := range d.NegatedFlags() {
			negated[flag] = true
		}
		for _, flag := range d.Flags() {
			p.spellings[flag] = spelling{desc: d, negated: negated[flag]}
		}
	}
	return p
}

// Parse tokenizes args.
func (p *Parser) Parse(args []string) (Parsed, error) {
	out := Parsed{Inputs: opts.Inputs{}}
	var greedy *opts.Descriptor

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out.Args = append(out.Args, args[i+1:]...)
			break
		}

		if !looksLikeFlag(arg) {
			if greedy != nil {
				out.Inputs[greedy.Name] = append(out.Inputs[greedy.Name], arg)
				continue
			}
			out.Args = append(out.Args, arg)
			continue
		}
		greedy = nil

		name, value, hasValue := strings.Cut(arg, "=")
		if !strings.HasPrefix(name, "--") && len(name) > 2 && !hasValue {
			if err := p.bundle(out.Inputs, name); err != nil {
				return Parsed{}, err
			}
			continue
		}

		sp, ok := p.spellings[name]
		if !ok {
			return Parsed{}, p.unknownFlag(name)
		}
		d := sp.desc
		p.logger.Debug("parsing flag", slog.String("flag", name), slog.String("option", d.Name))

		switch {
		case d.IsFlag():
			tokens := []string{}
			switch {
			case hasValue:
				tokens = []string{value}
			case sp.negated:
				tokens = []string{"false"}
			}
			out.Inputs[d.Name] = tokens
		case d.Kind != opts.GrammarScalar:
			out.Inputs[d.Name] = []string{}
			if hasValue {
				out.Inputs[d.Name] = append(out.Inputs[d.Name], value)
				continue
			}
			greedy = d
		default:
			if !hasValue {
				if i+1 >= len(args) || looksLikeFlag(args[i+1]) || args[i+1] == "--" {
					return Parsed{}, &errs.Error{Kind: errs.ErrValue, Option: d.Name, Msg: fmt.Sprintf("flag %s needs an argument", name)}
				}
				i++
				value = args[i]
			}
			if d.Multiple {
				out.Inputs[d.Name] = append(out.Inputs[d.Name], value)
			} else {
				out.Inputs[d.Name] = []string{value}
			}
		}
	}
	return out, nil
}

// bundle expands "-LR" into its single-letter boolean flags.
func (p *Parser) bundle(inputs opts.Inputs, arg string) error {
	for _, r := range arg[1:] {
		flag := "-" + string(r)
		sp, ok := p.spellings[flag]
		if !ok {
			return p.unknownFlag(flag)
		}
		if !sp.desc.IsFlag() {
			return &errs.Error{Kind: errs.ErrValue, Option: sp.desc.Name,
				Msg: fmt.Sprintf("flag %s takes a value and cannot be combined in %s", flag, arg)}
		}
		inputs[sp.desc.Name] = []string{}
	}
	return nil
}

func (p *Parser) unknownFlag(flag string) error {
	candidates := make([]string, 0, len(p.spellings))
	for spelled := range p.spellings {
		candidates = append(candidates, spelled)
	}
	err := errs.New(errs.ErrValue, "no such option: %s", flag)
	if hint := grammar.Suggest(flag, candidates); hint != "" {
		err.Msg += fmt.Sprintf(" (did you mean %q?)", hint)
	}
	return err
}

func looksLikeFlag(arg string) bool {
	if len(arg) < 2 || arg[0] != '-' || arg == "--" {
		return false
	}
	_, err := numeric.Parse(arg)
	return err != nil
}
