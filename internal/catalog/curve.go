package catalog

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Параметры кривой по умолчанию: L(2)=1000, L(3)=2500, L(4)=6250 ...
const (
	DefaultCurveBase       = 1000
	DefaultCurveMultiplier = "2.5"
	DefaultMaxLevel        = 30
)

var maxThreshold = decimal.NewFromInt(math.MaxInt64)

// Curve задаёт формулу порогов уровней: L(1)=0, L(n)=floor(base * multiplier^(n-2)).
type Curve struct {
	Base       int64
	Multiplier decimal.Decimal
	MaxLevel   int
}

// Thresholds строит таблицу порогов для уровней 1..MaxLevel.
func (c Curve) Thresholds() ([]int64, error) {
	if c.MaxLevel < 1 {
		return nil, errors.New("max level must be positive")
	}
	if c.Base <= 0 {
		return nil, errors.New("curve base must be positive")
	}
	if !c.Multiplier.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("curve multiplier must be greater than 1, got %s", c.Multiplier)
	}

	res := make([]int64, c.MaxLevel)
	base := decimal.NewFromInt(c.Base)
	for n := 2; n <= c.MaxLevel; n++ {
		pow, err := c.Multiplier.PowInt32(int32(n - 2))
		if err != nil {
			return nil, fmt.Errorf("threshold for level %d: %w", n, err)
		}
		v := base.Mul(pow).Floor()
		if v.GreaterThan(maxThreshold) {
			return nil, fmt.Errorf("threshold for level %d overflows int64", n)
		}
		res[n-1] = v.IntPart()
	}

	if err := checkThresholds(res); err != nil {
		return nil, err
	}
	return res, nil
}

func checkThresholds(t []int64) error {
	if len(t) == 0 {
		return errors.New("level table is empty")
	}
	if t[0] != 0 {
		return fmt.Errorf("level 1 threshold must be 0, got %d", t[0])
	}
	for i := 1; i < len(t); i++ {
		if t[i] <= t[i-1] {
			return fmt.Errorf("level thresholds must be strictly increasing: L(%d)=%d, L(%d)=%d", i, t[i-1], i+1, t[i])
		}
	}
	return nil
}
