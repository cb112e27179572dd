package transform

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"batchread/internal/contract"
)

// DefaultTimeout bounds a single transform execution
const DefaultTimeout = 5 * time.Second

// Transform is one loaded script. goja VMs are not safe for concurrent
// use, so each transform serializes its executions.
type Transform struct {
	Name    string
	runtime *Runtime
	fn      goja.Callable
	mu      sync.Mutex
}

// Manager loads and runs transforms by name
type Manager struct {
	transforms map[string]*Transform
	timeout    time.Duration
	logger     zerolog.Logger
	mu         sync.RWMutex
}

// NewManager creates a Manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		transforms: make(map[string]*Transform),
		timeout:    DefaultTimeout,
		logger:     logger.With().Str("component", "transform").Logger(),
	}
}

// SetTimeout overrides the execution timeout
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// LoadDir loads every .js file in dir. The transform name is the file
// name without extension. A missing directory is not an error.
func (m *Manager) LoadDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		m.logger.Warn().Str("directory", dir).Msg("transform directory does not exist")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat transform directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("transform path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read transform directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}
		if err := m.load(filepath.Join(dir, entry.Name())); err != nil {
			m.logger.Error().Err(err).Str("file", entry.Name()).Msg("failed to load transform")
			continue
		}
		loaded++
	}

	m.logger.Info().Int("loaded", loaded).Str("directory", dir).Msg("transforms loaded")
	return nil
}

// LoadScript compiles a transform from source under the given name
func (m *Manager) LoadScript(name, script string) error {
	runtime := NewRuntime(m.logger)
	if _, err := runtime.VM().RunString(script); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}

	fnValue := runtime.VM().Get("transform")
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return fmt.Errorf("script does not define a transform function")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transforms[name]; exists {
		return fmt.Errorf("duplicate transform name: %s", name)
	}
	m.transforms[name] = &Transform{Name: name, runtime: runtime, fn: fn}
	return nil
}

// Has reports whether a transform is loaded
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.transforms[name]
	return ok
}

// Apply runs a transform against a batch result and returns its output
func (m *Manager) Apply(name string, batch contract.BatchResult) (interface{}, error) {
	m.mu.RLock()
	t, ok := m.transforms[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transform: %s", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	vm := t.runtime.VM()
	timer := time.AfterFunc(m.timeout, func() {
		vm.Interrupt("transform timeout")
	})
	defer timer.Stop()
	defer vm.ClearInterrupt()

	value, err := t.fn(goja.Undefined(), vm.ToValue(exportBatch(batch)))
	if err != nil {
		return nil, fmt.Errorf("transform %s failed: %w", name, err)
	}
	return value.Export(), nil
}

// SelectFunc adapts a named transform to the reader's Select signature
func (m *Manager) SelectFunc(name string) func(contract.BatchResult) (interface{}, error) {
	return func(batch contract.BatchResult) (interface{}, error) {
		return m.Apply(name, batch)
	}
}

func (m *Manager) load(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read transform file: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), ".js")
	return m.LoadScript(name, string(content))
}

// exportBatch converts a batch result to plain JS-friendly values:
// [{values: [...], error: string|null}, ...]
func exportBatch(batch contract.BatchResult) []map[string]interface{} {
	out := make([]map[string]interface{}, len(batch))
	for i, r := range batch {
		entry := map[string]interface{}{"values": nil, "error": nil}
		if r.Err != nil {
			entry["error"] = r.Err.Error()
		} else {
			values := make([]interface{}, len(r.Values))
			for j, v := range r.Values {
				values[j] = exportValue(v)
			}
			entry["values"] = values
		}
		out[i] = entry
	}
	return out
}

// exportValue flattens go-ethereum decoded types into strings and
// primitives a script can handle
func exportValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *big.Int:
		return val.String()
	case common.Address:
		return val.Hex()
	case common.Hash:
		return val.Hex()
	case []byte:
		return hexutil.Encode(val)
	case [32]byte:
		return hexutil.Encode(val[:])
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = exportValue(e)
		}
		return out
	default:
		return val
	}
}
