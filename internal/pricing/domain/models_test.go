package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 1.23, RoundMoney(1.234))
	assert.Equal(t, 1.13, RoundMoney(1.125))
	assert.Equal(t, -1.23, RoundMoney(-1.234))
	assert.Equal(t, 100.0, RoundMoney(100))
}

func TestMarginOnCost(t *testing.T) {
	assert.Equal(t, 45.0, MarginOnCost(72.5, 50))
	assert.Equal(t, 0.0, MarginOnCost(50, 50))
	assert.Equal(t, -20.0, MarginOnCost(40, 50))
	assert.Equal(t, 0.0, MarginOnCost(100, 0), "zero cost yields zero, not a division fault")
}

func TestPriceWithMargin(t *testing.T) {
	assert.Equal(t, 72.5, PriceWithMargin(50, 45))
	assert.Equal(t, 50.0, PriceWithMargin(50, 0))
	assert.Equal(t, 58.0, PriceWithMargin(40, 45))
}

func TestPriceWithMarginRoundTripsThroughMarginOnCost(t *testing.T) {
	price := PriceWithMargin(63, 35)
	assert.Equal(t, 35.0, MarginOnCost(price, 63))
}

func TestParseCase(t *testing.T) {
	for _, c := range []PriceCase{
		CaseSAPFunction, CaseStableHistory, CaseModifiedHistory,
		CaseOthersHistory, CaseNewProduct, CaseManual,
	} {
		got, err := ParseCase(string(c))
		assert.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCase("CAS_5_GUESSWORK")
	assert.ErrorIs(t, err, ErrInvalidCase)
	_, err = ParseCase("")
	assert.ErrorIs(t, err, ErrInvalidCase)
}
