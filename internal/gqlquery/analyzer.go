// Package gqlquery parses GraphQL query text into the identity and
// complexity figures the analytics layer groups and correlates by.
package gqlquery

import (
	"strings"
	"sync"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
)

// Analysis describes one GraphQL document
type Analysis struct {
	OperationType string `json:"operationType"`
	OperationName string `json:"operationName,omitempty"`
	FieldCount    int    `json:"fieldCount"`
	Depth         int    `json:"depth"`
	Signature     string `json:"signature"`
	Valid         bool   `json:"valid"`
	Error         string `json:"error,omitempty"`
}

// Complexity is the figure used for correlation: field count weighted by
// nesting depth
func (a Analysis) Complexity() float64 {
	return float64(a.FieldCount * max(a.Depth, 1))
}

const defaultCacheSize = 1024

// Analyzer parses queries and memoizes results by query text
type Analyzer struct {
	mu        sync.Mutex
	cache     map[string]Analysis
	cacheSize int
}

// NewAnalyzer creates an analyzer with a bounded result cache
func NewAnalyzer() *Analyzer {
	return &Analyzer{cache: make(map[string]Analysis), cacheSize: defaultCacheSize}
}

// Analyze parses query and returns its analysis. Unparseable text falls
// back to a whitespace-collapsed signature.
func (a *Analyzer) Analyze(query string) Analysis {
	a.mu.Lock()
	if res, ok := a.cache[query]; ok {
		a.mu.Unlock()
		return res
	}
	a.mu.Unlock()

	res := Analyze(query)

	a.mu.Lock()
	if len(a.cache) >= a.cacheSize {
		a.cache = make(map[string]Analysis)
	}
	a.cache[query] = res
	a.mu.Unlock()
	return res
}

// Identity returns the grouping key for a query
func (a *Analyzer) Identity(query string) string {
	return a.Analyze(query).Signature
}

// Analyze parses query without caching
func Analyze(query string) Analysis {
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return Analysis{
			OperationType: "unknown",
			Signature:     collapseWhitespace(query),
			Error:         err.Error(),
		}
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var op *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			if op == nil {
				op = d
			}
		case *ast.FragmentDefinition:
			if d.Name != nil {
				fragments[d.Name.Value] = d
			}
		}
	}
	if op == nil {
		return Analysis{
			OperationType: "unknown",
			Signature:     collapseWhitespace(query),
			Error:         "document contains no operation",
		}
	}

	w := &walker{fragments: fragments, visiting: make(map[string]bool)}
	body, depth := w.selectionSet(op.SelectionSet, 1)

	res := Analysis{
		OperationType: string(op.Operation),
		FieldCount:    w.fields,
		Depth:         depth,
		Valid:         true,
	}
	if res.OperationType == "" {
		res.OperationType = "query"
	}
	if op.Name != nil {
		res.OperationName = op.Name.Value
	}

	name := res.OperationName
	if name == "" {
		name = "anonymous"
	}
	res.Signature = res.OperationType + " " + name + " " + body
	return res
}

type walker struct {
	fragments map[string]*ast.FragmentDefinition
	visiting  map[string]bool
	fields    int
}

// selectionSet renders set as "{a,b{c}}" with aliases and arguments dropped
// and returns the deepest field level reached
func (w *walker) selectionSet(set *ast.SelectionSet, level int) (string, int) {
	if set == nil || len(set.Selections) == 0 {
		return "", level - 1
	}

	parts := make([]string, 0, len(set.Selections))
	depth := level - 1
	for _, sel := range set.Selections {
		var part string
		d := level - 1
		switch s := sel.(type) {
		case *ast.Field:
			w.fields++
			part = s.Name.Value
			sub, subDepth := w.selectionSet(s.SelectionSet, level+1)
			part += sub
			d = max(level, subDepth)
		case *ast.InlineFragment:
			part, d = w.selectionSet(s.SelectionSet, level)
			part = "..." + part
		case *ast.FragmentSpread:
			frag, ok := w.fragments[s.Name.Value]
			if !ok || w.visiting[s.Name.Value] {
				part = "..." + s.Name.Value
				break
			}
			w.visiting[s.Name.Value] = true
			part, d = w.selectionSet(frag.SelectionSet, level)
			part = "..." + part
			delete(w.visiting, s.Name.Value)
		}
		parts = append(parts, part)
		depth = max(depth, d)
	}
	return "{" + strings.Join(parts, ",") + "}", depth
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
