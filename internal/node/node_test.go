package node

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPortLazyCreation(t *testing.T) {
	var b Base
	require.Empty(t, b.Ports())
	p := b.Port("i_eeg")
	require.NotNil(t, p)
	require.Same(t, p, b.Port("i_eeg"), "repeated access returns the same port")
}

func TestPortInvalidNamePanics(t *testing.T) {
	var b Base
	require.Panics(t, func() { b.Port("not-a-port") })
}

func TestBindAliasesSamePort(t *testing.T) {
	var b Base
	b.Bind("o", "o_0")
	require.Same(t, b.Port("o"), b.Port("o_0"))
}

func TestIterateWildcardIsSortedAndPrefixScoped(t *testing.T) {
	var b Base
	b.Port("o_1")
	b.Port("o_2")
	b.Port("i_other")

	results := b.Iterate("o_*")
	require.Len(t, results, 2)
	require.Equal(t, "o_1", results[0].Name)
	require.Equal(t, "1", results[0].Suffix)
	require.Equal(t, "o_2", results[1].Name)
}

func TestClearDropsUnaliasedNumberedPorts(t *testing.T) {
	var b Base
	b.Bind("o", "o_0") // o_0 aliases the named port o, must survive
	b.Port("o_1")      // not aliased to anything named, must be dropped

	b.Clear()

	_, hasZero := b.Ports()["o_0"]
	_, hasOne := b.Ports()["o_1"]
	require.True(t, hasZero)
	require.False(t, hasOne)
}

func TestIsValidPortName(t *testing.T) {
	require.True(t, IsValidPortName("i"))
	require.True(t, IsValidPortName("o_eeg"))
	require.True(t, IsValidPortName("i_eeg_1"))
	require.False(t, IsValidPortName("eeg"))
	require.False(t, IsValidPortName(""))
}

func TestIsNumbered(t *testing.T) {
	require.True(t, IsNumbered("o_1"))
	require.False(t, IsNumbered("o_eeg"))
}
