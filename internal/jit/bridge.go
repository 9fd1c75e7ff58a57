package jit

import (
	"sync"

	"github.com/storylang/storylang/internal/ast"
)

// Bridge is the shared cache of compiled methods. It is keyed on the
// *ast.MethodDecl pointer of the specific dispatch-stack layer that was
// compiled, not on (Concept,Method) name alone: a base method and a
// Situation's override of the same method name are distinct bodies and
// must not share a compiled entry.
type Bridge struct {
	mu       sync.Mutex
	compiled map[*ast.MethodDecl]*CompiledMethod
}

// NewBridge creates an empty Bridge.
func NewBridge() *Bridge {
	return &Bridge{compiled: make(map[*ast.MethodDecl]*CompiledMethod)}
}

// Get returns the cached CompiledMethod for method, if any.
func (b *Bridge) Get(method *ast.MethodDecl) (*CompiledMethod, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cm, ok := b.compiled[method]
	return cm, ok
}

// Store caches cm under method.
func (b *Bridge) Store(method *ast.MethodDecl, cm *CompiledMethod) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compiled[method] = cm
}
