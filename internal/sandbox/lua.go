// Package sandbox runs admin-authored generation routines in an isolated
// Lua state: no io, no os, a deterministic seed and a hard wall-clock budget.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Shopify/go-lua"
)

// Output is the pair a generation routine must produce.
type Output struct {
	Input    string
	Expected string
}

// ErrTimeout reports a routine that exceeded its wall-clock budget.
var ErrTimeout = errors.New("generation routine timed out")

// checkEvery is the instruction count between deadline checks in the Lua
// debug hook.
const checkEvery = 10000

// LuaExecutor executes routines in a fresh restricted Lua state per call.
// States are never shared between routines or participants.
type LuaExecutor struct{}

// NewLuaExecutor creates a new Lua executor
func NewLuaExecutor() *LuaExecutor {
	return &LuaExecutor{}
}

// Execute runs a routine with the given seed. The routine sees the globals
// of the base, table, string and math libraries plus an integer `seed`, and
// must return two values: the input payload and the expected result.
func (e *LuaExecutor) Execute(ctx context.Context, routine string, seed int64, timeout time.Duration) (Output, error) {
	deadline := time.Now().Add(timeout)

	type result struct {
		out Output
		err error
	}
	done := make(chan result, 1)

	go func() {
		out, err := runRoutine(routine, seed, deadline)
		done <- result{out: out, err: err}
	}()

	timer := time.NewTimer(timeout + time.Second)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return Output{}, ctx.Err()
	case <-timer.C:
		// The in-state deadline hook should have fired already; this
		// path abandons a routine the hook could not reach.
		return Output{}, ErrTimeout
	}
}

func runRoutine(routine string, seed int64, deadline time.Time) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation routine panicked: %v", r)
		}
	}()

	l := lua.NewState()
	openRestrictedLibraries(l)

	l.PushInteger(int(seed))
	l.SetGlobal("seed")

	// Abort long-running scripts from inside the VM; the hook runs every
	// checkEvery instructions.
	lua.SetDebugHook(l, func(state *lua.State, ar lua.Debug) {
		if time.Now().After(deadline) {
			lua.Errorf(state, "generation timeout")
		}
	}, lua.MaskCount, checkEvery)

	if err := lua.LoadString(l, routine); err != nil {
		return Output{}, fmt.Errorf("failed to load routine: %w", err)
	}
	if err := l.ProtectedCall(0, 2, 0); err != nil {
		if time.Now().After(deadline) {
			return Output{}, ErrTimeout
		}
		return Output{}, fmt.Errorf("routine failed: %w", err)
	}

	input, err := stackString(l, -2)
	if err != nil {
		return Output{}, err
	}
	expected, err := stackString(l, -1)
	if err != nil {
		return Output{}, err
	}

	return Output{Input: input, Expected: expected}, nil
}

// openRestrictedLibraries loads only side-effect-free libraries. io, os,
// package and debug stay closed, so routines cannot touch the host.
func openRestrictedLibraries(l *lua.State) {
	for _, lib := range []struct {
		name string
		open lua.Function
	}{
		{"_G", lua.BaseOpen},
		{"table", lua.TableOpen},
		{"string", lua.StringOpen},
		{"math", lua.MathOpen},
	} {
		lua.Require(l, lib.name, lib.open, true)
		l.Pop(1)
	}
}

func stackString(l *lua.State, index int) (string, error) {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s, nil
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10), nil
		}
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("routine must return strings or numbers, got %s", lua.TypeNameOf(l, index))
	}
}
