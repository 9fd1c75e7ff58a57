package interp

import (
	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/runtime"
)

// evalDoInBackground implements "Do in background: <block>":
// it snapshots the current lexical environment and active-Situation set,
// spawns a fresh Evaluator sharing the process-wide Executor/Profiler/
// JIT/Resolver, and returns a TaskHandle immediately without blocking.
func (e *Evaluator) evalDoInBackground(ex *ast.DoInBackgroundExpression) (runtime.Value, error) {
	clonedEnv := runtime.DeepCloneEnv(e.Env)
	activeCopy := append([]string{}, e.active...)
	concepts := make(map[string]*ast.ConceptDecl, len(e.Concepts))
	for k, v := range e.Concepts {
		concepts[k] = v
	}
	situations := make(map[string]*ast.SituationDecl, len(e.Situations))
	for k, v := range e.Situations {
		situations[k] = v
	}
	used := make(map[string]bool, len(e.usedModules))
	for k, v := range e.usedModules {
		used[k] = v
	}
	body := ex.Body

	handle := e.Executor.Spawn(func(cancelled func() bool) (runtime.Value, error) {
		sub := &Evaluator{
			Env:         clonedEnv,
			Concepts:    concepts,
			Situations:  situations,
			active:      activeCopy,
			Executor:    e.Executor,
			Profiler:    e.Profiler,
			JIT:         e.JIT,
			Resolver:    e.Resolver,
			usedModules: used,
			Stdout:      e.Stdout,
		}
		c, err := sub.execScopedBlock(body)
		if err != nil {
			// Background errors never propagate synchronously: they land
			// as an ErrorVal the spawner sees on Await.
			return runtime.ToErrorVal(err), nil
		}
		if c.kind == ctrlReturn {
			return c.value, nil
		}
		return runtime.None(), nil
	})

	return handle, nil
}
