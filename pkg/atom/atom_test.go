package atom

import (
	"testing"

	"github.com/hadronzoo/deltadb/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestSetValueIntDecimalAndHex(t *testing.T) {
	a := New()
	require.NoError(t, a.SetValue(schema.BaseInt32, "42"))
	require.Equal(t, "42", a.Str())

	require.NoError(t, a.SetValue(schema.BaseInt32, "0x2A"))
	require.Equal(t, "42", a.Str())

	require.NoError(t, a.SetValue(schema.BaseInt32, "-7"))
	require.Equal(t, "-7", a.Str())
}

func TestSetValueIntRangeError(t *testing.T) {
	a := New()
	require.Error(t, a.SetValue(schema.BaseInt8, "200"))
	require.True(t, a.IsClear())
}

func TestSetValueBool(t *testing.T) {
	a := New()
	for _, s := range []string{"true", "yes", "y", "1"} {
		require.NoError(t, a.SetValue(schema.BaseBool, s))
		require.Equal(t, "true", a.Str())
	}
	for _, s := range []string{"false", "no", "n", "0"} {
		require.NoError(t, a.SetValue(schema.BaseBool, s))
		require.Equal(t, "false", a.Str())
	}
	require.Error(t, a.SetValue(schema.BaseBool, "maybe"))
}

func TestSetValueDomainEmailURL(t *testing.T) {
	a := New()
	require.NoError(t, a.SetValue(schema.BaseDomain, "example.com"))
	require.Error(t, a.SetValue(schema.BaseDomain, "not a domain"))

	require.NoError(t, a.SetValue(schema.BaseEmail, "user@example.com"))
	require.Error(t, a.SetValue(schema.BaseEmail, "not-an-email"))

	require.NoError(t, a.SetValue(schema.BaseURL, "https://example.com/path"))
	require.Error(t, a.SetValue(schema.BaseURL, "not a url"))
}

func TestSetValueDateRoundTrip(t *testing.T) {
	a := New()
	require.NoError(t, a.SetValue(schema.BaseDate, "2026-08-01"))
	require.Equal(t, "2026-08-01", a.Str())
}

func TestSetNumberInfersSmallestBase(t *testing.T) {
	a := New()
	require.NoError(t, a.SetNumber("5"))
	require.Equal(t, schema.BaseInt8, a.Base())

	require.NoError(t, a.SetNumber("1000"))
	require.Equal(t, schema.BaseInt16, a.Base())

	require.NoError(t, a.SetNumber("100000"))
	require.Equal(t, schema.BaseInt32, a.Base())

	require.NoError(t, a.SetNumber("9999999999"))
	require.Equal(t, schema.BaseInt64, a.Base())
}

func TestSetChainRejectsNonBlobBase(t *testing.T) {
	a := New()
	require.Error(t, a.SetChain(schema.BaseString, []byte("x")))
	require.NoError(t, a.SetChain(schema.BaseBinary, []byte{1, 2, 3}))
	require.Equal(t, []byte{1, 2, 3}, a.Bytes())
}

func TestClear(t *testing.T) {
	a := New()
	require.True(t, a.IsClear())
	require.NoError(t, a.SetValue(schema.BaseString, "hi"))
	require.False(t, a.IsClear())
	a.Clear()
	require.True(t, a.IsClear())
}
