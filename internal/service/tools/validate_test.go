package tools_test

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/xiaolang/backend/internal/service/tools"
)

var testParams = map[string]*schema.ParameterInfo{
	"name":  {Type: schema.String, Required: true},
	"count": {Type: schema.Integer},
	"ratio": {Type: schema.Number},
	"flag":  {Type: schema.Boolean},
	"level": {Type: schema.String, Enum: []string{"low", "high"}},
	"tags":  {Type: schema.Array, ElemInfo: &schema.ParameterInfo{Type: schema.String}},
	"when": {Type: schema.Object, SubParams: map[string]*schema.ParameterInfo{
		"date": {Type: schema.String, Required: true},
	}},
}

func TestValidateAccepts(t *testing.T) {
	args, err := tools.Validate(testParams, `{"name":"x","count":3,"ratio":0.5,"flag":true,"level":"high","tags":["a"],"when":{"date":"2024-06-01"}}`)
	require.NoError(t, err)
	assert.Equal(t, "x", args["name"])
	assert.Equal(t, int64(3), args["count"])
	assert.Equal(t, 0.5, args["ratio"])
	assert.Equal(t, true, args["flag"])
	assert.Equal(t, []any{"a"}, args["tags"])
	assert.Equal(t, map[string]any{"date": "2024-06-01"}, args["when"])
}

func TestValidateIntegerWrittenAsFloat(t *testing.T) {
	args, err := tools.Validate(testParams, `{"name":"x","count":4.0}`)
	require.NoError(t, err)
	assert.Equal(t, int64(4), args["count"])
}

func TestValidateNullOptionalIsAbsent(t *testing.T) {
	args, err := tools.Validate(testParams, `{"name":"x","count":null}`)
	require.NoError(t, err)
	_, present := args["count"]
	assert.False(t, present)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"not json":             `{"name":`,
		"not an object":        `["name"]`,
		"trailing data":        `{"name":"x"} {}`,
		"unknown field":        `{"name":"x","extra":1}`,
		"missing required":     `{"count":1}`,
		"required null":        `{"name":null}`,
		"string as integer":    `{"name":"x","count":"3"}`,
		"fractional integer":   `{"name":"x","count":3.5}`,
		"number as string":     `{"name":"x","ratio":"0.5"}`,
		"bool as string":       `{"name":"x","flag":"true"}`,
		"enum mismatch":        `{"name":"x","level":"mid"}`,
		"array elem type":      `{"name":"x","tags":[1]}`,
		"nested unknown field": `{"name":"x","when":{"date":"d","hour":1}}`,
		"nested missing":       `{"name":"x","when":{}}`,
		"object as string":     `{"name":"x","when":"2024-06-01"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tools.Validate(testParams, raw)
			assert.ErrorIs(t, err, tools.ErrInvalidArguments)
		})
	}
}

func TestValidateEmptyArguments(t *testing.T) {
	_, err := tools.Validate(map[string]*schema.ParameterInfo{}, "")
	assert.NoError(t, err)

	_, err = tools.Validate(testParams, "")
	assert.ErrorIs(t, err, tools.ErrInvalidArguments)
}
