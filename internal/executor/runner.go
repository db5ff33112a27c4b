package executor

// Runner runs callbacks on a caller-chosen execution context.
type Runner interface {
	Run(fn func())
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(fn func())

// Run implements Runner.
func (f RunnerFunc) Run(fn func()) { f(fn) }

var (
	// Inline runs callbacks on the calling goroutine.
	Inline Runner = RunnerFunc(func(fn func()) { fn() })

	// Goroutine runs every callback on a new goroutine.
	Goroutine Runner = RunnerFunc(func(fn func()) { go fn() })
)
