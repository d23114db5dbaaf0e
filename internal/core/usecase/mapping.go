package usecase

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

//go:embed mapping.schema.json
var mappingSchemaJSON []byte

var (
	mappingOnce   sync.Once
	mappingSchema *santhosh.Schema
	mappingErr    error
)

func compiledMappingSchema() (*santhosh.Schema, error) {
	mappingOnce.Do(func() {
		c := santhosh.NewCompiler()
		c.Draft = santhosh.Draft7
		if err := c.AddResource("mapping.schema.json", bytes.NewReader(mappingSchemaJSON)); err != nil {
			mappingErr = err
			return
		}
		mappingSchema, mappingErr = c.Compile("mapping.schema.json")
	})
	return mappingSchema, mappingErr
}

// ParseMapping decodes the column mapping sent alongside a CSV upload.
func ParseMapping(raw []byte) (domain.StudentMapping, error) {
	sch, err := compiledMappingSchema()
	if err != nil {
		return domain.StudentMapping{}, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.StudentMapping{}, domain.Invalid("Invalid mapping JSON")
	}
	if err := sch.Validate(v); err != nil {
		return domain.StudentMapping{}, domain.WrapInvalid("Invalid mapping JSON", err)
	}
	var m domain.StudentMapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.StudentMapping{}, domain.Invalid("Invalid mapping JSON")
	}
	return m, nil
}
