package api_test

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/omarluq/vk-async/internal/api"
)

type userID int

type named struct{ name string }

func (n named) String() string { return "@" + n.name }

func TestStringify(t *testing.T) {
	t.Parallel()

	count := 7
	var nilPtr *int
	var nilTime *time.Time

	tests := []struct {
		value  any
		name   string
		want   string
		wantOK bool
	}{
		{name: "string untouched", value: "a,b c", want: "a,b c", wantOK: true},
		{name: "true", value: true, want: "1", wantOK: true},
		{name: "false", value: false, want: "0", wantOK: true},
		{name: "int", value: 42, want: "42", wantOK: true},
		{name: "negative int64", value: int64(-3), want: "-3", wantOK: true},
		{name: "uint", value: uint8(200), want: "200", wantOK: true},
		{name: "float", value: 1.5, want: "1.5", wantOK: true},
		{name: "named int", value: userID(9), want: "9", wantOK: true},
		{name: "stringer", value: named{"durov"}, want: "@durov", wantOK: true},
		{name: "int slice", value: []int{1, 2, 3}, want: "1,2,3", wantOK: true},
		{name: "string slice", value: []string{"photo", "sex"}, want: "photo,sex", wantOK: true},
		{name: "bool array", value: [2]bool{true, false}, want: "1,0", wantOK: true},
		{name: "nested slice", value: [][]int{{1, 2}, {3}}, want: "1,2,3", wantOK: true},
		{name: "mixed slice drops nil", value: []any{1, nil, "x"}, want: "1,x", wantOK: true},
		{name: "empty slice", value: []int{}, want: "", wantOK: true},
		{name: "pointer", value: &count, want: "7", wantOK: true},
		{name: "nil pointer", value: nilPtr, wantOK: false},
		{name: "nil pointer to value stringer", value: nilTime, wantOK: false},
		{name: "slice drops nil stringer pointers", value: []*time.Time{nil, nil}, want: "", wantOK: true},
		{name: "nil slice", value: []int(nil), wantOK: false},
		{name: "nil", value: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := api.Stringify(tt.value)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParams_Values(t *testing.T) {
	t.Parallel()

	p := api.Params{
		"user_ids": []int{1, 2},
		"extended": true,
		"fields":   "photo_50",
		"offset":   nil,
		"since":    (*time.Time)(nil),
		"count":    100,
	}

	assert.Equal(t, url.Values{
		"user_ids": {"1,2"},
		"extended": {"1"},
		"fields":   {"photo_50"},
		"count":    {"100"},
	}, p.Values())

	assert.Empty(t, api.Params(nil).Values())
}

func TestStringify_Properties(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("int slices join decimal elements with commas", prop.ForAll(
		func(items []int) bool {
			got, ok := api.Stringify(items)
			if !ok {
				return false
			}
			parts := make([]string, len(items))
			for i, v := range items {
				parts[i] = strconv.Itoa(v)
			}
			return got == strings.Join(parts, ",")
		},
		gen.SliceOf(gen.Int()),
	))

	properties.Property("strings pass through unchanged", prop.ForAll(
		func(s string) bool {
			got, ok := api.Stringify(s)
			return ok && got == s
		},
		gen.AnyString(),
	))

	properties.Property("bool slices contain only 0 and 1", prop.ForAll(
		func(items []bool) bool {
			got, _ := api.Stringify(items)
			if len(items) == 0 {
				return got == ""
			}
			for i, part := range strings.Split(got, ",") {
				want := "0"
				if items[i] {
					want = "1"
				}
				if part != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestStringify_Time(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, ok := api.Stringify(ts)
	assert.True(t, ok)
	assert.Equal(t, ts.String(), got)
}
