package calc_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/tool"
	"github.com/m-mizutani/seeker/pkg/tool/calc"
)

func TestCalc(t *testing.T) {
	ctx := context.Background()
	reg := tool.New(nil, calc.New())
	catalog, err := reg.Catalog(ctx)
	gt.NoError(t, err)
	gt.Equal(t, catalog.Names()[0], "add")

	cases := map[string]string{
		"FUNCTION_CALL: add|a=2|b=3":                                 "5",
		"FUNCTION_CALL: subtract|a=2|b=5":                            "-3",
		"FUNCTION_CALL: divide|a=7|b=2":                              "3.5",
		"FUNCTION_CALL: remainder|a=7|b=3":                           "1",
		"FUNCTION_CALL: power|a=2|b=10":                              "1024",
		"FUNCTION_CALL: sqrt|a=6.25":                                 "2.5",
		"FUNCTION_CALL: factorial|a=5":                               "120",
		"FUNCTION_CALL: fibonacci_numbers|n=7":                       "[0,1,1,2,3,5,8]",
		"FUNCTION_CALL: fibonacci_numbers|n=0":                       "[]",
		"FUNCTION_CALL: strings_to_chars_to_int|string=AB":           "[65,66]",
		`FUNCTION_CALL: int_list_to_exponential_sum {"int_list": [0, 0]}`: "2",
	}
	for plan, want := range cases {
		t.Run(plan, func(t *testing.T) {
			res, err := reg.Execute(ctx, catalog, plan)
			gt.NoError(t, err)
			gt.Equal(t, res.Result, want)
		})
	}
}

func TestCalcErrors(t *testing.T) {
	ctx := context.Background()
	reg := tool.New(nil, calc.New())
	catalog, err := reg.Catalog(ctx)
	gt.NoError(t, err)

	for _, plan := range []string{
		"FUNCTION_CALL: divide|a=1|b=0",
		"FUNCTION_CALL: factorial|a=21",
		"FUNCTION_CALL: add|a=1",
		"FUNCTION_CALL: add|a=one|b=2",
		"FUNCTION_CALL: log|a=0",
	} {
		t.Run(plan, func(t *testing.T) {
			_, err := reg.Execute(ctx, catalog, plan)
			gt.True(t, goerr.HasTag(err, tool.ErrTagExecution))
		})
	}
}
