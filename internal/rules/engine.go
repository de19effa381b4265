package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnstable is returned with the partially rewritten text when the rules
// keep changing it past the iteration limit.
var ErrUnstable = errors.New("dictation rules did not settle")

const defaultIterationLimit = 30

type rule interface {
	Apply(input string) (output string, changed bool)
}

// Engine rewrites recognized dictation with deterministic substitutions.
type Engine struct {
	rules          []rule
	iterationLimit int
}

// NewEngine loads rules from path. A missing file falls back to the
// built-in spoken punctuation rules.
func NewEngine(path string, iterationLimit int) (*Engine, error) {
	return NewEngineWithParsers(path, iterationLimit, defaultParsers())
}

// NewEngineWithParsers allows custom rule syntaxes ahead of the built-in ones.
func NewEngineWithParsers(path string, iterationLimit int, parsers []Parser) (*Engine, error) {
	source := builtinRules
	if strings.TrimSpace(path) != "" {
		contents, err := os.ReadFile(path)
		switch {
		case err == nil:
			source = string(contents)
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
		}
	}

	engine, err := Compile(source, iterationLimit, parsers...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return engine, nil
}

// Compile builds an engine from rule text, one rule per line.
func Compile(source string, iterationLimit int, parsers ...Parser) (*Engine, error) {
	if iterationLimit <= 0 {
		iterationLimit = defaultIterationLimit
	}
	if len(parsers) == 0 {
		parsers = defaultParsers()
	}

	compiled, err := parseRules(source, parsers)
	if err != nil {
		return nil, err
	}
	return &Engine{rules: compiled, iterationLimit: iterationLimit}, nil
}

// Len reports how many rules are loaded.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply runs every rule in order until a full pass changes nothing.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.iterationLimit; i++ {
		changed := false
		for _, r := range e.rules {
			if next, ok := r.Apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			return strings.TrimSpace(result), nil
		}
	}
	return strings.TrimSpace(result), ErrUnstable
}

func parseRules(source string, parsers []Parser) ([]rule, error) {
	lines := strings.Split(source, "\n")
	compiled := make([]rule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parser := pick(parsers, line)
		if parser == nil {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
		r, err := parser.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		compiled = append(compiled, r)
	}

	return compiled, nil
}

func pick(parsers []Parser, line string) Parser {
	for _, parser := range parsers {
		if parser.CanParse(line) {
			return parser
		}
	}
	return nil
}
