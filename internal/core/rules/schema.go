package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

//go:embed dsl.schema.json
var dslSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *santhosh.Schema
	schemaErr      error
)

func bodySchema() (*santhosh.Schema, error) {
	schemaOnce.Do(func() {
		compiler := santhosh.NewCompiler()
		compiler.Draft = santhosh.Draft7
		if err := compiler.AddResource("dsl.schema.json", bytes.NewReader(dslSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("dsl.schema.json")
	})
	return compiledSchema, schemaErr
}

// Check validates a DSL document against the embedded schema and then parses
// it. Used when rule versions are authored; stored bodies go through Parse only.
func Check(raw json.RawMessage) (Body, error) {
	sch, err := bodySchema()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, domain.WrapInvalid("rule dsl must be valid json", err)
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return nil, domain.Invalid("rule dsl: %s", strings.Join(leafErrors(ve), "; "))
		}
		return nil, domain.WrapInvalid("rule dsl", err)
	}
	return Parse(raw)
}

func leafErrors(ve *santhosh.ValidationError) []string {
	if len(ve.Causes) == 0 {
		return []string{ve.InstanceLocation + ": " + ve.Message}
	}
	var msgs []string
	for _, c := range ve.Causes {
		msgs = append(msgs, leafErrors(c)...)
	}
	return msgs
}
