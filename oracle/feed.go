package oracle

import (
	"errors"
	"math/big"
	"sync"
	"time"
)

// RoundData is the snapshot reported by a round-based price feed.
type RoundData struct {
	RoundID         uint64
	Answer          *big.Int
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// RoundFeed is the primary price source. Answers are scaled by the feed's own
// decimal precision.
type RoundFeed interface {
	LatestRoundData() (RoundData, error)
	Decimals() uint8
}

// TickSource is the fallback price source. It reports cumulative tick values
// so a geometric-mean time-weighted price can be synthesised over a window.
type TickSource interface {
	// ObserveTicks returns the tick cumulatives at (now-window) and now.
	ObserveTicks(now time.Time, window time.Duration) (startCumulative, endCumulative int64, err error)
}

// LivenessFeed reports whether the host execution environment is live and
// since when. Price reads are refused while it is down or freshly recovered.
type LivenessFeed interface {
	Status(now time.Time) (up bool, since time.Time, err error)
}

// ManualFeed is an in-memory round feed for tests and incident overrides.
type ManualFeed struct {
	mu       sync.RWMutex
	decimals uint8
	round    RoundData
	err      error
}

// NewManualFeed constructs a manual feed with the given answer precision.
func NewManualFeed(decimals uint8) *ManualFeed {
	return &ManualFeed{decimals: decimals}
}

// Set records the latest round snapshot.
func (f *ManualFeed) Set(round RoundData) {
	f.mu.Lock()
	if round.Answer != nil {
		round.Answer = new(big.Int).Set(round.Answer)
	}
	f.round = round
	f.err = nil
	f.mu.Unlock()
}

// SetAnswer records a completed round with the given answer and timestamp.
func (f *ManualFeed) SetAnswer(answer *big.Int, updatedAt time.Time) {
	f.mu.Lock()
	next := f.round.RoundID + 1
	f.round = RoundData{
		RoundID:         next,
		Answer:          new(big.Int).Set(answer),
		UpdatedAt:       updatedAt,
		AnsweredInRound: next,
	}
	f.err = nil
	f.mu.Unlock()
}

// Fail makes subsequent reads return the provided error.
func (f *ManualFeed) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *ManualFeed) LatestRoundData() (RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return RoundData{}, f.err
	}
	round := f.round
	if round.Answer != nil {
		round.Answer = new(big.Int).Set(round.Answer)
	}
	return round, nil
}

func (f *ManualFeed) Decimals() uint8 { return f.decimals }

type tickObservation struct {
	at   time.Time
	tick int64
}

// ManualTickSource synthesises tick cumulatives from recorded (time, tick)
// observations, integrating the tick piecewise over time the way an on-chain
// observation buffer would.
type ManualTickSource struct {
	mu      sync.RWMutex
	samples []tickObservation
	err     error
}

// NewManualTickSource constructs an empty tick source.
func NewManualTickSource() *ManualTickSource {
	return &ManualTickSource{}
}

// Record appends an observation. Observations must be recorded in time order.
func (s *ManualTickSource) Record(at time.Time, tick int64) {
	s.mu.Lock()
	s.samples = append(s.samples, tickObservation{at: at, tick: tick})
	s.err = nil
	s.mu.Unlock()
}

// Fail makes subsequent observations return the provided error.
func (s *ManualTickSource) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

var errNoObservations = errors.New("oracle: tick source has no observations covering the window")

func (s *ManualTickSource) ObserveTicks(now time.Time, window time.Duration) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return 0, 0, s.err
	}
	if len(s.samples) == 0 || window <= 0 {
		return 0, 0, errNoObservations
	}
	start := now.Add(-window)
	if s.samples[0].at.After(start) {
		return 0, 0, errNoObservations
	}
	return s.cumulativeAt(start), s.cumulativeAt(now), nil
}

// cumulativeAt integrates tick*dt from the first observation to t, holding
// each tick constant until the next observation.
func (s *ManualTickSource) cumulativeAt(t time.Time) int64 {
	var cumulative int64
	for i, sample := range s.samples {
		segmentEnd := t
		if i+1 < len(s.samples) && s.samples[i+1].at.Before(t) {
			segmentEnd = s.samples[i+1].at
		}
		if segmentEnd.Before(sample.at) {
			break
		}
		elapsed := int64(segmentEnd.Sub(sample.at) / time.Second)
		cumulative += sample.tick * elapsed
		if segmentEnd.Equal(t) {
			break
		}
	}
	return cumulative
}

// ManualLiveness is an in-memory liveness feed.
type ManualLiveness struct {
	mu    sync.RWMutex
	up    bool
	since time.Time
}

// NewManualLiveness constructs a liveness feed that has been up since the
// given time.
func NewManualLiveness(since time.Time) *ManualLiveness {
	return &ManualLiveness{up: true, since: since}
}

// SetUp marks the environment live as of the given time.
func (l *ManualLiveness) SetUp(since time.Time) {
	l.mu.Lock()
	l.up = true
	l.since = since
	l.mu.Unlock()
}

// SetDown marks the environment down.
func (l *ManualLiveness) SetDown(since time.Time) {
	l.mu.Lock()
	l.up = false
	l.since = since
	l.mu.Unlock()
}

func (l *ManualLiveness) Status(time.Time) (bool, time.Time, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.up, l.since, nil
}
