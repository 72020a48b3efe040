package oracle

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/fpmath"
	"lendcore/observability"
	"lendcore/observability/logging"
)

var (
	// ErrNotConfigured indicates no price sources exist for the token.
	ErrNotConfigured = errors.New("oracle: token not configured")
	// ErrIncompleteRound indicates the primary feed answered in an older round.
	ErrIncompleteRound = errors.New("oracle: primary round incomplete")
	// ErrInvalidAnswer indicates the primary feed reported a non-positive price.
	ErrInvalidAnswer = errors.New("oracle: primary answer not positive")
	// ErrStalePrice indicates the primary answer exceeded the staleness bound.
	ErrStalePrice = errors.New("oracle: primary answer stale")
	// ErrPriceDeviationTooHigh indicates primary and fallback disagree beyond
	// the deviation bound; neither is trusted.
	ErrPriceDeviationTooHigh = errors.New("oracle: price deviation too high")
	// ErrOraclesUnavailable indicates both sources failed validation.
	ErrOraclesUnavailable = errors.New("oracle: all price sources unavailable")
	// ErrLivenessDown indicates the execution environment liveness feed
	// reports down; prices read now could be rolled back.
	ErrLivenessDown = errors.New("oracle: liveness feed reports down")
	// ErrLivenessGrace indicates the environment recovered too recently.
	ErrLivenessGrace = errors.New("oracle: liveness grace window not elapsed")
)

var wad = fpmath.Wad

const defaultMaxDeviationBps = 500

var basisPoints = big.NewInt(10_000)

// Config describes the price sources for one token. The primary is a
// round-based feed; the fallback synthesises a TWAP from tick cumulatives.
type Config struct {
	Primary       RoundFeed
	Fallback      TickSource
	TwapWindow    time.Duration
	MaxStaleness  time.Duration
	BaseDecimals  uint8
	QuoteDecimals uint8
	// Invert flips the fallback pair ordering when the token of interest is
	// the quote leg of the observed pool.
	Invert bool
}

// PriceResult is a resolved WAD-scaled USD price.
type PriceResult struct {
	Price     *big.Int
	Timestamp time.Time
	// Fallback marks whether the TWAP source produced the value.
	Fallback bool
}

// Oracle resolves token prices from a primary round feed with a TWAP
// fallback, gated by an optional liveness feed for the host environment.
type Oracle struct {
	mu              sync.RWMutex
	configs         map[common.Address]Config
	liveness        LivenessFeed
	grace           time.Duration
	maxDeviationBps uint64
	clock           func() time.Time
	log             *slog.Logger
}

// New constructs an oracle with the default 5% deviation bound.
func New() *Oracle {
	return &Oracle{
		configs:         make(map[common.Address]Config),
		maxDeviationBps: defaultMaxDeviationBps,
		clock:           time.Now,
		log:             logging.Nop(),
	}
}

// Configure registers or replaces the price sources for a token.
func (o *Oracle) Configure(tok common.Address, cfg Config) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.configs[tok] = cfg
	o.mu.Unlock()
}

// SetLiveness wires the execution-environment liveness feed and the grace
// window applied after recovery.
func (o *Oracle) SetLiveness(feed LivenessFeed, grace time.Duration) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.liveness = feed
	o.grace = grace
	o.mu.Unlock()
}

// SetMaxDeviationBps overrides the primary/fallback disagreement bound.
func (o *Oracle) SetMaxDeviationBps(bps uint64) {
	if o == nil || bps == 0 {
		return
	}
	o.mu.Lock()
	o.maxDeviationBps = bps
	o.mu.Unlock()
}

// SetClock overrides the time source. Intended for tests.
func (o *Oracle) SetClock(clock func() time.Time) {
	if o == nil || clock == nil {
		return
	}
	o.mu.Lock()
	o.clock = clock
	o.mu.Unlock()
}

// SetLogger wires a structured logger.
func (o *Oracle) SetLogger(log *slog.Logger) {
	if o == nil || log == nil {
		return
	}
	o.mu.Lock()
	o.log = log
	o.mu.Unlock()
}

// GetPrice resolves the token price. When both sources validate they must
// agree within the deviation bound and the primary wins; a lone valid source
// wins outright; no valid source fails the read.
func (o *Oracle) GetPrice(tok common.Address) (PriceResult, error) {
	if o == nil {
		return PriceResult{}, ErrNotConfigured
	}
	o.mu.RLock()
	cfg, ok := o.configs[tok]
	liveness := o.liveness
	grace := o.grace
	maxDeviation := o.maxDeviationBps
	now := o.clock()
	log := o.log
	o.mu.RUnlock()

	if liveness != nil {
		up, since, err := liveness.Status(now)
		if err != nil || !up {
			return PriceResult{}, ErrLivenessDown
		}
		if grace > 0 && now.Sub(since) < grace {
			return PriceResult{}, ErrLivenessGrace
		}
	}
	if !ok || (cfg.Primary == nil && cfg.Fallback == nil) {
		return PriceResult{}, ErrNotConfigured
	}

	var (
		primary *big.Int
		primAt  time.Time
		primErr error = ErrNotConfigured
	)
	if cfg.Primary != nil {
		primary, primAt, primErr = o.primaryPrice(cfg, now)
	}

	var (
		fallback    *big.Int
		fallbackErr error = ErrNotConfigured
	)
	if cfg.Fallback != nil {
		fallback, fallbackErr = twapPrice(cfg, now)
	}

	switch {
	case primErr == nil && fallbackErr == nil:
		if deviationExceeded(primary, fallback, maxDeviation) {
			observability.Engine().ObserveOracle("deviation")
			log.Warn("price sources disagree",
				slog.String("token", tok.Hex()),
				slog.String("primary", primary.String()),
				slog.String("fallback", fallback.String()))
			return PriceResult{}, fmt.Errorf("%w: primary=%s fallback=%s", ErrPriceDeviationTooHigh, primary, fallback)
		}
		observability.Engine().ObserveOracle("direct")
		return PriceResult{Price: primary, Timestamp: primAt, Fallback: false}, nil
	case primErr == nil:
		observability.Engine().ObserveOracle("direct")
		return PriceResult{Price: primary, Timestamp: primAt, Fallback: false}, nil
	case fallbackErr == nil:
		observability.Engine().ObserveOracle("fallback")
		log.Info("primary unavailable, using twap fallback",
			slog.String("token", tok.Hex()),
			slog.String("reason", primErr.Error()))
		return PriceResult{Price: fallback, Timestamp: now, Fallback: true}, nil
	default:
		observability.Engine().ObserveOracle("unavailable")
		return PriceResult{}, fmt.Errorf("%w: primary: %v; fallback: %v", ErrOraclesUnavailable, primErr, fallbackErr)
	}
}

func (o *Oracle) primaryPrice(cfg Config, now time.Time) (*big.Int, time.Time, error) {
	round, err := cfg.Primary.LatestRoundData()
	if err != nil {
		return nil, time.Time{}, err
	}
	if round.AnsweredInRound < round.RoundID {
		return nil, time.Time{}, ErrIncompleteRound
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, time.Time{}, ErrInvalidAnswer
	}
	if cfg.MaxStaleness > 0 && now.Sub(round.UpdatedAt) > cfg.MaxStaleness {
		return nil, time.Time{}, ErrStalePrice
	}
	price, err := fpmath.MulDiv(round.Answer, wad, fpmath.Pow10(cfg.Primary.Decimals()), fpmath.RoundDown)
	if err != nil {
		return nil, time.Time{}, err
	}
	return price, round.UpdatedAt, nil
}

// deviationExceeded reports whether |primary-fallback| relative to the
// primary exceeds maxBps basis points.
func deviationExceeded(primary, fallback *big.Int, maxBps uint64) bool {
	diff := new(big.Int).Sub(primary, fallback)
	diff.Abs(diff)
	lhs := new(big.Int).Mul(diff, basisPoints)
	rhs := new(big.Int).Mul(primary, new(big.Int).SetUint64(maxBps))
	return lhs.Cmp(rhs) > 0
}
