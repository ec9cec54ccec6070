package validator_test

import (
	"context"
	"strings"
	"testing"
	"time"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-cluster-filesync/internal/pkg/validator"
)

type testConfig struct {
	NodeID  string        `configKey:"nodeId" validate:"required"`
	Timeout time.Duration `configKey:"timeout" validate:"min=1s,max=1m"`
	Nested  testNested    `configKey:"nested"`
	testEmbedded
}

type testNested struct {
	Mode  string `json:"mode" validate:"oneof=buffered mmap"`
	Count int    `validate:"min=1"`
}

type testEmbedded struct {
	Name string `configKey:"name" validate:"even_length"`
}

func TestValidator_Valid(t *testing.T) {
	t.Parallel()
	value := testConfig{NodeID: "node1", Timeout: time.Second, Nested: testNested{Mode: "mmap", Count: 1}, testEmbedded: testEmbedded{Name: "ab"}}
	require.NoError(t, validator.New(evenLength()).Validate(context.Background(), value))
}

func TestValidator_Invalid(t *testing.T) {
	t.Parallel()
	value := testConfig{Timeout: time.Second, Nested: testNested{Mode: "foo"}, testEmbedded: testEmbedded{Name: "ab"}}
	err := validator.New(evenLength()).Validate(context.Background(), value)
	require.Error(t, err)
	expected := `
- "nodeId" is a required field
- "nested.mode" must be one of [buffered mmap]
- "nested.Count" must be 1 or greater
`
	assert.Equal(t, strings.TrimSpace(expected), err.Error())
}

func TestValidator_Duration(t *testing.T) {
	t.Parallel()
	value := testConfig{NodeID: "node1", Timeout: time.Hour, Nested: testNested{Mode: "mmap", Count: 1}}
	err := validator.New(evenLength()).Validate(context.Background(), value)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"timeout"`)
}

func evenLength() validator.Rule {
	return validator.Rule{
		Tag: "even_length",
		Func: func(fl goValidator.FieldLevel) bool {
			return len(fl.Field().String())%2 == 0
		},
	}
}
