// Package transform runs JavaScript read-side transforms for the
// daemon's configured readers. A transform file defines a single
// `transform(result)` function receiving the decoded batch result and
// returning whatever the consumer wants published.
package transform

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"golang.org/x/crypto/sha3"
)

// Runtime wraps a goja VM with console and hex/keccak utilities
type Runtime struct {
	vm     *goja.Runtime
	logger zerolog.Logger
}

// NewRuntime creates a Runtime with all bindings installed
func NewRuntime(logger zerolog.Logger) *Runtime {
	r := &Runtime{
		vm:     goja.New(),
		logger: logger,
	}
	r.setupConsole()
	r.setupUtils()
	return r
}

// VM returns the underlying goja runtime
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

// setupConsole routes console.* to the zerolog logger
func (r *Runtime) setupConsole() {
	console := r.vm.NewObject()

	bind := func(name string, level zerolog.Level) {
		console.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]interface{}, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			r.logger.WithLevel(level).Msgf("[transform] %v", args)
			return goja.Undefined()
		})
	}

	bind("log", zerolog.InfoLevel)
	bind("warn", zerolog.WarnLevel)
	bind("error", zerolog.ErrorLevel)
	bind("debug", zerolog.DebugLevel)

	r.vm.Set("console", console)
}

// setupUtils installs hex and keccak helpers
func (r *Runtime) setupUtils() {
	utils := r.vm.NewObject()

	utils.Set("hexToBytes", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("hexToBytes requires 1 argument"))
		}
		s := strings.TrimPrefix(call.Arguments[0].String(), "0x")
		b, err := hex.DecodeString(s)
		if err != nil {
			panic(r.vm.ToValue(fmt.Sprintf("invalid hex string: %v", err)))
		}
		return r.vm.ToValue(b)
	})

	utils.Set("bytesToHex", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("bytesToHex requires 1 argument"))
		}
		b, ok := exportBytes(call.Arguments[0].Export())
		if !ok {
			panic(r.vm.ToValue("bytesToHex requires a byte array"))
		}
		return r.vm.ToValue("0x" + hex.EncodeToString(b))
	})

	utils.Set("keccak256", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("keccak256 requires 1 argument"))
		}
		var data []byte
		switch v := call.Arguments[0].Export().(type) {
		case string:
			data = []byte(v)
		default:
			b, ok := exportBytes(v)
			if !ok {
				panic(r.vm.ToValue("keccak256 requires a string or byte array"))
			}
			data = b
		}
		h := sha3.NewLegacyKeccak256()
		h.Write(data)
		return r.vm.ToValue("0x" + hex.EncodeToString(h.Sum(nil)))
	})

	r.vm.Set("utils", utils)
}

// exportBytes coerces a goja-exported value into a byte slice
func exportBytes(v interface{}) ([]byte, bool) {
	switch val := v.(type) {
	case []byte:
		return val, true
	case []interface{}:
		b := make([]byte, len(val))
		for i, e := range val {
			switch n := e.(type) {
			case int64:
				b[i] = byte(n)
			case float64:
				b[i] = byte(n)
			default:
				return nil, false
			}
		}
		return b, true
	default:
		return nil, false
	}
}
