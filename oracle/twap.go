package oracle

import (
	"fmt"
	"math/big"
	"time"
)

const tickPrecision = 128

var (
	oneFloat  = big.NewFloat(1).SetPrec(tickPrecision)
	tickBase  = new(big.Float).SetPrec(tickPrecision).SetRat(big.NewRat(10001, 10000))
	wadFloat  = new(big.Float).SetPrec(tickPrecision).SetInt(wad)
	tenFloat  = big.NewFloat(10).SetPrec(tickPrecision)
	zeroFloat = new(big.Float)
)

// averageTick derives the arithmetic-mean tick over the window from two tick
// cumulatives, rounding towards negative infinity so the derived geometric
// mean never overstates the price.
func averageTick(startCumulative, endCumulative int64, window time.Duration) (int64, error) {
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		return 0, fmt.Errorf("oracle: twap window must cover at least one second")
	}
	delta := endCumulative - startCumulative
	tick := delta / seconds
	if delta%seconds != 0 && delta < 0 {
		tick--
	}
	return tick, nil
}

// priceAtTick evaluates 1.0001^tick by binary exponentiation over big.Float.
func priceAtTick(tick int64) *big.Float {
	negative := tick < 0
	if negative {
		tick = -tick
	}
	result := new(big.Float).SetPrec(tickPrecision).SetInt64(1)
	base := new(big.Float).SetPrec(tickPrecision).Set(tickBase)
	for exp := uint64(tick); exp > 0; exp >>= 1 {
		if exp&1 == 1 {
			result.Mul(result, base)
		}
		base.Mul(base, base)
	}
	if negative {
		result.Quo(oneFloat, result)
	}
	return result
}

// twapPrice resolves the fallback time-weighted price for the configured
// token: geometric-mean tick over the window, normalised by the token-pair
// decimals and optionally inverted for token ordering, scaled to WAD.
func twapPrice(cfg Config, now time.Time) (*big.Int, error) {
	startCum, endCum, err := cfg.Fallback.ObserveTicks(now, cfg.TwapWindow)
	if err != nil {
		return nil, err
	}
	tick, err := averageTick(startCum, endCum, cfg.TwapWindow)
	if err != nil {
		return nil, err
	}
	price := priceAtTick(tick)

	// The raw tick price relates native units; rescale by the pair's decimal
	// difference to obtain a whole-token price.
	if cfg.BaseDecimals != cfg.QuoteDecimals {
		shift := int(cfg.BaseDecimals) - int(cfg.QuoteDecimals)
		scale := powFloat10(shift)
		price.Mul(price, scale)
	}
	if cfg.Invert {
		if price.Cmp(zeroFloat) == 0 {
			return nil, fmt.Errorf("oracle: zero twap price cannot be inverted")
		}
		price.Quo(oneFloat, price)
	}

	price.Mul(price, wadFloat)
	out, _ := price.Int(nil)
	if out.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: twap price rounded to zero")
	}
	return out, nil
}

func powFloat10(exp int) *big.Float {
	negative := exp < 0
	if negative {
		exp = -exp
	}
	out := new(big.Float).SetPrec(tickPrecision).SetInt64(1)
	for i := 0; i < exp; i++ {
		out.Mul(out, tenFloat)
	}
	if negative {
		out.Quo(oneFloat, out)
	}
	return out
}
