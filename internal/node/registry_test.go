package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeNode struct {
	Base
}

func (f *fakeNode) Update() error { return nil }

func TestRegistryMakeUnknownKey(t *testing.T) {
	r := NewRegistry()
	_, err := r.Make("n1", "missing", "Class", nil)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "n1", loadErr.NodeID)
}

func TestRegistryMakeWrapsConstructorError(t *testing.T) {
	r := NewRegistry()
	r.Register("demo", "Bad", func(params map[string]interface{}) (Instance, error) {
		return nil, errors.New("missing required param \"rate\"")
	})
	_, err := r.Make("n1", "demo", "Bad", nil)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Contains(t, loadErr.Reason, "rate")
}

func TestRegistryMakeSetsNodeID(t *testing.T) {
	r := NewRegistry()
	r.Register("demo", "Ok", func(params map[string]interface{}) (Instance, error) {
		return &fakeNode{}, nil
	})
	inst, err := r.Make("n42", "demo", "Ok", nil)
	require.NoError(t, err)
	require.Equal(t, "n42", inst.(*fakeNode).ID())
}

func TestRegistryRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	ctor := func(params map[string]interface{}) (Instance, error) { return &fakeNode{}, nil }
	r.Register("demo", "Ok", ctor)
	require.Panics(t, func() { r.Register("demo", "Ok", ctor) })
}
