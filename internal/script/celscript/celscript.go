// Package celscript compiles template scripts written as CEL assignments:
//
//	[Script:PickPhrase]
//	# hot days get their own phrase
//	PhraseName = has(subs.temp) && subs.temp > 90 ? "HotWeather" : phrase
//	unit = locale == "en-US" ? "F" : "C"
//
// Statements run in order. Assigning PhraseName redirects rendering to another
// phrase; any other target writes a substitution. Expressions see the
// variables subs, phrase and locale. An indented line that is not itself a
// statement continues the previous expression.
package celscript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"golang.org/x/text/language"

	"github.com/nadzzz/statlg/internal/script"
	"github.com/nadzzz/statlg/internal/template"
)

// PhraseTarget is the assignment target that redirects rendering.
const PhraseTarget = "PhraseName"

// DefaultCostLimit bounds the evaluation cost of a single statement.
const DefaultCostLimit = 1000000

var statementRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.\-]*)\s*=([^=].*)$`)

// Compiler compiles script blocks against a shared CEL environment.
type Compiler struct {
	env       *cel.Env
	costLimit uint64
}

// New creates a compiler with the default cost limit.
func New() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("subs", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("phrase", cel.StringType),
		cel.Variable("locale", cel.StringType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Compiler{env: env, costLimit: DefaultCostLimit}, nil
}

func (c *Compiler) Name() string { return "cel" }

type source struct {
	target string
	expr   string
	line   int
}

type statement struct {
	source
	prog cel.Program
}

type compiled struct {
	name       string
	statements []statement
}

// Compile compiles every block. A block with any bad statement is left out;
// all problems are joined into the returned error.
func (c *Compiler) Compile(templateName string, blocks []*template.ScriptBlock, logger *slog.Logger) (map[string]script.Func, error) {
	out := make(map[string]script.Func, len(blocks))
	var errs []error
	for _, b := range blocks {
		s, err := c.compileBlock(b)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", templateName, err))
			continue
		}
		if _, dup := out[b.Name]; dup && logger != nil {
			logger.Warn("script defined more than once, keeping the last definition",
				"template", templateName,
				"script", b.Name,
			)
		}
		out[b.Name] = s.run
	}
	return out, errors.Join(errs...)
}

func (c *Compiler) compileBlock(b *template.ScriptBlock) (*compiled, error) {
	sources, err := parse(b)
	if err != nil {
		return nil, err
	}
	s := &compiled{name: b.Name}
	var errs []error
	for _, src := range sources {
		prog, err := c.program(src.expr)
		if err != nil {
			errs = append(errs, fmt.Errorf("script %s line %d: %w", b.Name, src.line, err))
			continue
		}
		s.statements = append(s.statements, statement{source: src, prog: prog})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func (c *Compiler) program(expr string) (cel.Program, error) {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prog, err := c.env.Program(ast,
		cel.CostLimit(c.costLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

func isScriptComment(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "#") || strings.HasPrefix(t, "//")
}

// parse splits a script body into statements.
func parse(b *template.ScriptBlock) ([]source, error) {
	var out []source
	for i, line := range b.Lines {
		if strings.TrimSpace(line) == "" || isScriptComment(line) {
			continue
		}
		if m := statementRe.FindStringSubmatch(line); m != nil {
			target := strings.TrimPrefix(m[1], "subs.")
			out = append(out, source{target: target, expr: strings.TrimSpace(m[2]), line: i + 1})
			continue
		}
		indented := line[0] == ' ' || line[0] == '\t'
		if !indented || len(out) == 0 {
			return nil, fmt.Errorf("script %s line %d: expected <target> = <expression>, got %q",
				b.Name, i+1, strings.TrimSpace(line))
		}
		last := &out[len(out)-1]
		last.expr += "\n" + strings.TrimSpace(line)
	}
	return out, nil
}

func (s *compiled) run(ctx context.Context, subs map[string]any, phrase string, locale language.Tag, logger *slog.Logger) (string, error) {
	if subs == nil {
		return phrase, fmt.Errorf("script %s: nil substitutions", s.name)
	}
	current := phrase
	for _, st := range s.statements {
		out, _, err := st.prog.ContextEval(ctx, map[string]any{
			"subs":   subs,
			"phrase": current,
			"locale": locale.String(),
		})
		if err != nil {
			return phrase, fmt.Errorf("script %s line %d: %w", s.name, st.line, err)
		}
		value := out.Value()
		if st.target == PhraseTarget {
			name, ok := value.(string)
			if !ok {
				return phrase, fmt.Errorf("script %s line %d: %s must be a string, got %T", s.name, st.line, PhraseTarget, value)
			}
			current = name
			continue
		}
		subs[st.target] = value
		if logger != nil {
			logger.Debug("script assigned substitution", "script", s.name, "slot", st.target, "value", value)
		}
	}
	return current, nil
}
