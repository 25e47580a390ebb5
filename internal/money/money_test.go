package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse("1500.5")
	require.NoError(t, err)
	assert.Equal(t, int64(150050), m.Minor())
	assert.Equal(t, "1500.50", m.String())

	_, err = Parse("10.005")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse("abc")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestArithmeticHasNoDrift(t *testing.T) {
	// 0.1 added ten times is exactly 1.00, unlike float64.
	total := Zero
	for i := 0; i < 10; i++ {
		total = total.Add(MustParse("0.10"))
	}
	assert.Equal(t, FromInt(1), total)
	assert.Equal(t, MustParse("0.70"), FromInt(1).Sub(MustParse("0.30")))
	assert.True(t, MustParse("0.99").LessThan(FromInt(1)))
	assert.False(t, FromInt(1).LessThan(FromInt(1)))
}

func TestPercentRoundsHalfUp(t *testing.T) {
	assert.Equal(t, FromInt(16000), FromInt(80000).Percent(decimal.NewFromInt(20)))
	// 0.05 × 50% = 0.025 → 0.03
	assert.Equal(t, MustParse("0.03"), MustParse("0.05").Percent(decimal.NewFromInt(50)))
	// 0.01 × 33.33% = 0.003333 → 0.00
	assert.Equal(t, Zero, MustParse("0.01").Percent(decimal.RequireFromString("33.33")))
	assert.Equal(t, MustParse("41.67"), FromInt(125).Percent(decimal.RequireFromString("33.333")))
}

func TestAllocateSumsExactly(t *testing.T) {
	weights := []Money{MustParse("33.33"), MustParse("33.33"), MustParse("33.34")}
	total := Sum(weights...).Percent(decimal.RequireFromString("12.5"))

	parts := Allocate(total, weights)
	require.Len(t, parts, 3)
	assert.Equal(t, total, Sum(parts...))
	for i, w := range weights {
		naive := w.Percent(decimal.RequireFromString("12.5"))
		assert.LessOrEqual(t, (parts[i] - naive).Abs(), Money(1))
	}
}

func TestAllocateProportional(t *testing.T) {
	parts := Allocate(FromInt(16000), []Money{FromInt(30000), FromInt(40000), FromInt(10000)})
	assert.Equal(t, []Money{FromInt(6000), FromInt(8000), FromInt(2000)}, parts)
}

func TestAllocateZeroWeights(t *testing.T) {
	parts := Allocate(FromInt(10), []Money{0, 0})
	assert.Equal(t, []Money{FromInt(10), 0}, parts)
	assert.Empty(t, Allocate(FromInt(10), nil))
}

func TestJSON(t *testing.T) {
	type payload struct {
		Amount Money `json:"amount"`
	}
	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 80000}`), &p))
	assert.Equal(t, FromInt(80000), p.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount": "12.34"}`), &p))
	assert.Equal(t, MustParse("12.34"), p.Amount)

	assert.Error(t, json.Unmarshal([]byte(`{"amount": 1.234}`), &p))

	out, err := json.Marshal(payload{Amount: FromInt(150000)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"150000.00"}`, string(out))
}

func TestScan(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan([]byte("130000.00")))
	assert.Equal(t, FromInt(130000), m)

	require.NoError(t, m.Scan("10.000"))
	assert.Equal(t, FromInt(10), m)

	require.NoError(t, m.Scan(nil))
	assert.True(t, m.IsZero())

	v, err := MustParse("99.90").Value()
	require.NoError(t, err)
	assert.Equal(t, "99.90", v)
}
