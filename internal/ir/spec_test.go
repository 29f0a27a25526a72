package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    CompileSpec
		wantErr string
	}{
		{
			name: "single forward",
			spec: NewCompileSpec("forward", []int64{1, 3, 224, 224}),
		},
		{
			name:    "no methods",
			spec:    CompileSpec{},
			wantErr: "no methods",
		},
		{
			name: "two methods",
			spec: CompileSpec{Methods: []MethodSpec{
				{Name: "forward", InputSizes: [][]int64{{1}}},
				{Name: "encode", InputSizes: [][]int64{{1}}},
			}},
			wantErr: "at most 1",
		},
		{
			name:    "two inputs",
			spec:    NewCompileSpec("forward", []int64{1, 2}, []int64{3}),
			wantErr: "declares 2 inputs",
		},
		{
			name:    "no sizes",
			spec:    NewCompileSpec("forward"),
			wantErr: "no input sizes",
		},
		{
			name:    "zero extent",
			spec:    NewCompileSpec("forward", []int64{1, 0}),
			wantErr: "non-positive extent",
		},
		{
			name: "largest element count",
			spec: NewCompileSpec("forward", []int64{1 << 31, 1 << 31, 1}),
		},
		{
			name:    "element count overflows",
			spec:    NewCompileSpec("forward", []int64{1 << 32, 1 << 32, 4}),
			wantErr: "overflow int64 elements",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileSpec_Lookup(t *testing.T) {
	spec := NewCompileSpec("forward", []int64{2, 4})

	m, ok := spec.Method("forward")
	require.True(t, ok)
	assert.Equal(t, [][]int64{{2, 4}}, m.InputSizes)

	_, ok = spec.Method("backward")
	assert.False(t, ok)
	assert.Equal(t, []string{"forward"}, spec.MethodNames())
}

func TestCompileSpec_Canonical(t *testing.T) {
	out, err := MarshalCanonical(NewCompileSpec("forward", []int64{1, 3, 224, 224}).Canonical())
	require.NoError(t, err)
	assert.Equal(t, `{"methods":[{"name":"forward","sizes":[[1,3,224,224]]}]}`, string(out))
}

func TestInvocationDescriptor_CloneIsDeep(t *testing.T) {
	d := InvocationDescriptor{
		Method:     "forward",
		KernelID:   "m:1:forward:T",
		InputSizes: [][]int64{{1, 2}},
	}
	c := d.Clone()
	c.InputSizes[0][0] = 9

	assert.Equal(t, int64(1), d.InputSizes[0][0])
}

func TestCallingConvention_Roles(t *testing.T) {
	cc := CallingConvention{Args: []KernelArg{
		{Index: 0, Role: RoleInput, Name: "x"},
		{Index: 1, Role: RoleOutput, Name: "y"},
		{Index: 2, Role: RoleOutput, Name: "z"},
	}}

	assert.Len(t, cc.Inputs(), 1)
	assert.Len(t, cc.Outputs(), 2)
	assert.Equal(t, "z", cc.Outputs()[1].Name)
}
