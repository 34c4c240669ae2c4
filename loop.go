package courier

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// maxParallelDispatch caps concurrent tool executions within one round.
const maxParallelDispatch = 10

// maxToolResultLen bounds what a single tool result contributes to the
// conversation, in runes.
const maxToolResultLen = 8000

type toolExecResult struct {
	result   ToolResult
	duration time.Duration
}

type indexedResult struct {
	idx    int
	result toolExecResult
}

// safeExecute runs one tool call, converting Go errors and panics into
// ToolResult errors the model can read.
func safeExecute(ctx context.Context, tools *ToolRegistry, tc ToolCall) (res ToolResult) {
	defer func() {
		if p := recover(); p != nil {
			res = ToolResult{Error: fmt.Sprintf("tool %q panic: %v", tc.Name, p)}
		}
	}()
	r, err := tools.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		return ToolResult{Error: err.Error()}
	}
	return r
}

// dispatchParallel runs all tool calls concurrently and returns results in
// the same order as the input calls. A single call runs inline.
func dispatchParallel(ctx context.Context, tools *ToolRegistry, calls []ToolCall) []toolExecResult {
	if len(calls) == 1 {
		start := time.Now()
		r := safeExecute(ctx, tools, calls[0])
		return []toolExecResult{{result: r, duration: time.Since(start)}}
	}

	type workItem struct {
		idx int
		tc  ToolCall
	}
	workCh := make(chan workItem, len(calls))
	for i, tc := range calls {
		workCh <- workItem{idx: i, tc: tc}
	}
	close(workCh)

	resultCh := make(chan indexedResult, len(calls))
	numWorkers := min(len(calls), maxParallelDispatch)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if ctx.Err() != nil {
					resultCh <- indexedResult{w.idx, toolExecResult{result: ToolResult{Error: ctx.Err().Error()}}}
					continue
				}
				start := time.Now()
				r := safeExecute(ctx, tools, w.tc)
				resultCh <- indexedResult{w.idx, toolExecResult{result: r, duration: time.Since(start)}}
			}
		}()
	}
	wg.Wait()
	close(resultCh)

	results := make([]toolExecResult, len(calls))
	for r := range resultCh {
		results[r.idx] = r.result
	}
	return results
}

// truncateStr truncates a string to n runes.
func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
