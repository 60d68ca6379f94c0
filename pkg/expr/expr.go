package expr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ErrNotBool is returned when an expression does not yield a boolean.
var ErrNotBool = errors.New("expression did not evaluate to a boolean")

// cel.NewEnv registers types in shared package state.
var newEnvMu sync.Mutex

// Environment compiles expressions against a fixed set of declarations.
// Compiled programs are cached by source text, so rules evaluated on every
// filesystem event are only compiled once.
type Environment struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]compiled
}

type compiled struct {
	program cel.Program
	out     *cel.Type
}

// NewEnvironment returns an [Environment] declaring opts on top of the
// orgz function library.
func NewEnvironment(opts ...cel.EnvOption) (*Environment, error) {
	newEnvMu.Lock()
	env, err := cel.NewEnv(append(opts, cel.Lib(lib{}))...)
	newEnvMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &Environment{
		env:      env,
		programs: map[string]compiled{},
	}, nil
}

// MustNewEnvironment is like [NewEnvironment] but panics on error.
func MustNewEnvironment(opts ...cel.EnvOption) *Environment {
	env, err := NewEnvironment(opts...)
	if err != nil {
		panic(err)
	}

	return env
}

// Compile type-checks expression and returns a program for it.
//
//nolint:ireturn // Following CEL's function signature.
func (e *Environment) Compile(expression string) (cel.Program, error) {
	program, _, err := e.compile(expression)

	return program, err
}

// CompileBool is like [Environment.Compile], but also fails with
// [ErrNotBool] when the expression's static type cannot be a boolean.
// Expressions typed dyn, such as yamlPath lookups, are accepted and checked
// by [EvalBool].
//
//nolint:ireturn // Following CEL's function signature.
func (e *Environment) CompileBool(expression string) (cel.Program, error) {
	program, out, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: %q has type %s", ErrNotBool, expression, out)
	}

	return program, nil
}

func (e *Environment) compile(expression string) (cel.Program, *cel.Type, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.programs[expression]; ok {
		return c.program, c.out, nil
	}

	ast, issues := e.env.Compile(expression)
	if err := issues.Err(); err != nil {
		return nil, nil, fmt.Errorf("compile expression: %w", err)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, nil, fmt.Errorf("create program: %w", err)
	}

	c := compiled{program: program, out: ast.OutputType()}
	e.programs[expression] = c

	return c.program, c.out, nil
}

// FileVariables declares the variables [NewFileEnvironment] exposes to
// expressions about a single file or directory.
func FileVariables() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Variable("path", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("stem", cel.StringType),
		cel.Variable("ext", cel.StringType),
		cel.Variable("dir", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("isDir", cel.BoolType),
		cel.Variable("modified", cel.TimestampType),
		cel.Variable("now", cel.TimestampType),
	}
}

// NewFileEnvironment returns an [Environment] with [FileVariables].
func NewFileEnvironment(opts ...cel.EnvOption) (*Environment, error) {
	return NewEnvironment(append(FileVariables(), opts...)...)
}

// EvalBool runs program with vars and returns its boolean result.
func EvalBool(program cel.Program, vars map[string]any) (bool, error) {
	out, _, err := program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %s", ErrNotBool, out.Type().TypeName())
	}

	return b, nil
}
