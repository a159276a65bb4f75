package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	a, err := Parse("1234.5")
	require.NoError(t, err)
	require.Equal(t, "1234.50", a.String())

	_, err = Parse("not-a-number")
	require.Error(t, err)
}

func TestRoundingHalfUp(t *testing.T) {
	require.Equal(t, "10.01", MustParse("10.005").String())
	require.Equal(t, "10.00", MustParse("10.004").String())
	require.Equal(t, "0.34", FromFloat(0.335).String())
}

func TestArithmeticStaysExact(t *testing.T) {
	// 0.1 + 0.2 drifts under float64; must stay exact here.
	sum := MustParse("0.1").Add(MustParse("0.2"))
	require.True(t, sum.Equal(MustParse("0.3")))

	balance := MustParse("100.00")
	for i := 0; i < 10; i++ {
		balance = balance.Sub(MustParse("10.00"))
	}
	require.True(t, balance.IsZero())
}

func TestMin(t *testing.T) {
	require.Equal(t, "5.00", Min(MustParse("5"), MustParse("7.50")).String())
	require.Equal(t, "5.00", Min(MustParse("7.50"), MustParse("5")).String())
}

func TestMulInt(t *testing.T) {
	// 300 x 36 monthly installments.
	require.Equal(t, "10800.00", MustParse("300").MulInt(36).String())
}

func TestComparisons(t *testing.T) {
	require.True(t, MustParse("-1").IsNegative())
	require.True(t, MustParse("0.00").IsZero())
	require.True(t, MustParse("0.01").IsPositive())
	require.Equal(t, -1, MustParse("1").Cmp(MustParse("2")))
}

func TestJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(MustParse("42.10"))
	require.NoError(t, err)
	require.Equal(t, `"42.10"`, string(raw))

	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"99.95"`), &a))
	require.Equal(t, "99.95", a.String())

	require.NoError(t, json.Unmarshal([]byte(`15.5`), &a))
	require.Equal(t, "15.50", a.String())
}

func TestScanValue(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan("250.75"))
	require.Equal(t, "250.75", a.String())

	v, err := a.Value()
	require.NoError(t, err)
	require.Equal(t, "250.75", v)
}
