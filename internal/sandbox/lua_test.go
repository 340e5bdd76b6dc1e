package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_ReturnsInputAndExpected(t *testing.T) {
	exec := NewLuaExecutor()

	out, err := exec.Execute(context.Background(), `
		local a = seed % 97
		local b = seed % 89
		return a .. " " .. b, tostring(a + b)
	`, 123456, time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Input)
	assert.NotEmpty(t, out.Expected)
}

func TestExecute_Deterministic(t *testing.T) {
	exec := NewLuaExecutor()
	routine := `
		math.randomseed(seed)
		local n = math.random(1, 1000000)
		return "compute " .. n, tostring(n * 2)
	`

	first, err := exec.Execute(context.Background(), routine, 42, time.Second)
	require.NoError(t, err)
	second, err := exec.Execute(context.Background(), routine, 42, time.Second)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same seed, same output")

	other, err := exec.Execute(context.Background(), routine, 43, time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, first.Input, other.Input, "different seed, different output")
}

func TestExecute_NumberResultsFormatted(t *testing.T) {
	exec := NewLuaExecutor()

	out, err := exec.Execute(context.Background(), `return 7, 7 * 6`, 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "7", out.Input)
	assert.Equal(t, "42", out.Expected)
}

func TestExecute_RoutineFault(t *testing.T) {
	exec := NewLuaExecutor()

	_, err := exec.Execute(context.Background(), `error("broken routine")`, 1, time.Second)
	assert.Error(t, err)

	_, err = exec.Execute(context.Background(), `this is not lua`, 1, time.Second)
	assert.Error(t, err)
}

func TestExecute_WrongReturnArity(t *testing.T) {
	exec := NewLuaExecutor()

	_, err := exec.Execute(context.Background(), `return`, 1, time.Second)
	assert.Error(t, err)
}

func TestExecute_Timeout(t *testing.T) {
	exec := NewLuaExecutor()

	start := time.Now()
	_, err := exec.Execute(context.Background(), `while true do end`, 1, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second, "timeout must not hang")
}

func TestExecute_NoHostAccess(t *testing.T) {
	exec := NewLuaExecutor()

	// io and os are never opened in the sandboxed state.
	_, err := exec.Execute(context.Background(), `return io.open("/etc/passwd"), ""`, 1, time.Second)
	assert.Error(t, err)

	_, err = exec.Execute(context.Background(), `return os.getenv("HOME"), ""`, 1, time.Second)
	assert.Error(t, err)
}
