package handlers

import (
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmespath/go-jmespath"
)

// DefaultProjectionCacheSize caps how many compiled expressions a Projector keeps.
const DefaultProjectionCacheSize = 256

// Projector evaluates JMESPath expressions against JSON documents, keeping
// the most recently used compiled expressions.
type Projector struct {
	cache *lru.Cache[string, *jmespath.JMESPath]
}

func NewProjector() *Projector {
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, *jmespath.JMESPath](DefaultProjectionCacheSize)
	return &Projector{cache: cache}
}

// Len reports how many compiled expressions are cached.
func (p *Projector) Len() int {
	return p.cache.Len()
}

// Project evaluates expression against v's JSON form.
func (p *Projector) Project(expression string, v any) (any, error) {
	compiled, err := p.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}

	result, err := compiled.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

func (p *Projector) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	if compiled, ok := p.cache.Get(expression); ok {
		return compiled, nil
	}

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}
	p.cache.Add(expression, compiled)
	return compiled, nil
}
