package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cbegin/pattrns-go/internal/timebase"
)

const DefaultTimeout = 2 * time.Second

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout bounds every single script invocation. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// Engine owns one interpreter state. It is not safe for concurrent use: all callbacks
// created by an engine must be evaluated from the same goroutine.
type Engine struct {
	state    *lua.LState
	logger   *zap.Logger
	timeout  time.Duration
	errors   *ErrorQueue
	timeBase timebase.TimeBase
}

func NewEngine(tb timebase.TimeBase, opts ...Option) *Engine {
	e := &Engine{
		state:    lua.NewState(),
		logger:   zap.NewNop(),
		timeout:  DefaultTimeout,
		timeBase: tb,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.errors = NewErrorQueue(e.logger)
	registerContextTypes(e.state)
	e.registerBindings()
	return e
}

func (e *Engine) Close() { e.state.Close() }

func (e *Engine) Errors() *ErrorQueue { return e.errors }

func (e *Engine) Logger() *zap.Logger { return e.logger }

func (e *Engine) TimeBase() timebase.TimeBase { return e.timeBase }

// SetTimeBase changes the time base newly created callbacks start with.
func (e *Engine) SetTimeBase(tb timebase.TimeBase) { e.timeBase = tb }

// LoadString runs a pattern script and returns the pattern it evaluates to.
func (e *Engine) LoadString(source, name string) (*PatternSpec, error) {
	fn, err := e.state.Load(strings.NewReader(source), name)
	if err != nil {
		return nil, &Error{Callback: name, Err: err}
	}
	ret, err := e.call(fn)
	if err != nil {
		return nil, &Error{Callback: name, Err: err}
	}
	if ud, ok := ret.(*lua.LUserData); ok {
		if spec, ok := ud.Value.(*PatternSpec); ok {
			return spec, nil
		}
	}
	return nil, &Error{Callback: name, Err: fmt.Errorf("%w, got a '%s'", ErrNoPattern, ret.Type())}
}

func (e *Engine) LoadFile(path string) (*PatternSpec, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return e.LoadString(string(src), path)
}

// call invokes fn with a deadline and returns its first result.
func (e *Engine) call(fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	L := e.state
	var ctx context.Context
	if e.timeout > 0 && L.Context() == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), e.timeout)
		L.SetContext(ctx)
		defer func() {
			L.RemoveContext()
			cancel()
		}()
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return lua.LNil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
		}
		return lua.LNil, classify(err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}
