package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Callback wraps a script function so it can be evaluated once per pulse. If the first
// call returns another function, the callback turns into a generator: the returned function
// is used from then on, and Reset asks the original function for a fresh one.
type Callback struct {
	engine      *Engine
	function    *lua.LFunction
	generator   *lua.LFunction
	environment *lua.LTable
	initialized bool
	context     *Context
	userData    *lua.LUserData
}

func (e *Engine) NewCallback(fn *lua.LFunction) *Callback {
	ctx := &Context{timeBase: e.timeBase}
	return &Callback{
		engine:   e,
		function: fn,
		context:  ctx,
		userData: newContextUserData(e.state, ctx),
	}
}

// Name describes the wrapped function for error reports.
func (c *Callback) Name() string {
	fn := c.function
	if c.generator != nil {
		fn = c.generator
	}
	if fn.IsG || fn.Proto == nil {
		return "anonymous function"
	}
	return fmt.Sprintf("%s:%d", fn.Proto.SourceName, fn.Proto.LineDefined)
}

// IsStateful reports whether the callback is a generator. known is false until the
// callback has been evaluated at least once.
func (c *Callback) IsStateful() (stateful bool, known bool) {
	if !c.initialized {
		return false, false
	}
	return c.generator != nil, true
}

// Context returns the mutable context passed to the script on the next evaluation.
func (c *Callback) Context() *Context { return c.context }

func (c *Callback) Evaluate() (lua.LValue, error) {
	if c.initialized {
		return c.call(c.function)
	}
	c.initialized = true
	result, err := c.call(c.function)
	if err != nil {
		return lua.LNil, err
	}
	inner, ok := result.(*lua.LFunction)
	if !ok {
		c.environment = nil
		c.generator = nil
		return result, nil
	}
	c.environment = c.function.Env
	c.generator = c.function
	c.function = inner
	return c.call(c.function)
}

// Reset restores a generator to its initial state. It is a no-op for plain functions.
func (c *Callback) Reset() error {
	if !c.initialized || c.generator == nil {
		return nil
	}
	if c.environment != nil {
		c.generator.Env = c.environment
	}
	value, err := c.call(c.generator)
	if err != nil {
		return err
	}
	inner, ok := value.(*lua.LFunction)
	if !ok {
		return &Error{
			Callback: c.Name(),
			Err:      fmt.Errorf("%w: failed to reset generator, got a '%s'", ErrNotAGenerator, value.Type()),
		}
	}
	c.function = inner
	return nil
}

// Duplicate returns a callback sharing the script functions but owning a
// fresh context. Only the time base carries over; the owner sets trigger and
// parameters again.
func (c *Callback) Duplicate() *Callback {
	ctx := &Context{timeBase: c.context.timeBase}
	return &Callback{
		engine:      c.engine,
		function:    c.function,
		generator:   c.generator,
		environment: c.environment,
		initialized: c.initialized,
		context:     ctx,
		userData:    newContextUserData(c.engine.state, ctx),
	}
}

// HandleError queues err on the engine's error queue.
func (c *Callback) HandleError(err error) {
	c.engine.errors.Push(err)
}

func (c *Callback) call(fn *lua.LFunction) (lua.LValue, error) {
	ret, err := c.engine.call(fn, c.userData)
	if err != nil {
		return lua.LNil, &Error{Callback: c.Name(), Err: err}
	}
	return ret, nil
}
