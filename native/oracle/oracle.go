// Package oracle models the price feeds consumed by account valuation. The
// engine never fetches prices itself; it reads already-posted updates through
// a FeedReader and composes redemption-rate feeds on top of them.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"margind/core/types"
	"margind/native/fixed"
)

// MaxPriceQuoteAgeSeconds bounds how old the quote leg of a redemption-rate
// feed may be relative to the caller's clock.
const MaxPriceQuoteAgeSeconds = 30

var (
	// ErrNoOracle is returned when a price is requested for a token that has
	// no oracle configured.
	ErrNoOracle = errors.New("oracle: no oracle configured")
	// ErrFeedNotFound is returned by readers for unknown feed ids.
	ErrFeedNotFound = errors.New("oracle: feed not found")
	// ErrStaleQuote is returned when the quote leg of a redemption feed is
	// older than MaxPriceQuoteAgeSeconds.
	ErrStaleQuote = errors.New("oracle: redemption quote too old")
	// ErrInvalidPrice is returned for non-positive price mantissas.
	ErrInvalidPrice = errors.New("oracle: invalid price")
)

// Kind discriminates the oracle variants a token may be configured with.
type Kind uint8

const (
	// KindNone marks tokens without a price source.
	KindNone Kind = iota
	// KindPythPull reads a single pull-style feed.
	KindPythPull
	// KindPythPullRedemption multiplies a base feed by a quote feed,
	// pricing redemption-rate tokens in the quote currency.
	KindPythPullRedemption
)

func (k Kind) String() string {
	switch k {
	case KindPythPull:
		return "pyth-pull"
	case KindPythPullRedemption:
		return "pyth-pull-redemption"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none", "":
		*k = KindNone
	case "pyth-pull":
		*k = KindPythPull
	case "pyth-pull-redemption":
		*k = KindPythPullRedemption
	default:
		return fmt.Errorf("oracle: unknown kind %q", text)
	}
	return nil
}

// TokenPriceOracle describes where a token's price comes from.
type TokenPriceOracle struct {
	Kind        Kind          `json:"kind" yaml:"kind"`
	FeedID      types.Address `json:"feedId,omitempty" yaml:"feed_id,omitempty"`
	QuoteFeedID types.Address `json:"quoteFeedId,omitempty" yaml:"quote_feed_id,omitempty"`
}

// PriceUpdate is one posted observation for a feed.
type PriceUpdate struct {
	Price       int64
	Confidence  uint64
	EmaPrice    int64
	Exponent    int32
	PublishTime int64
}

// FeedReader provides read-only access to posted price updates by feed id.
type FeedReader interface {
	Price(ctx context.Context, feed types.Address) (PriceUpdate, error)
}

// PriceChange is the resolved price handed to position bookkeeping.
type PriceChange struct {
	Value       int64
	Confidence  uint64
	Twap        int64
	PublishTime int64
	Exponent    int32
}

// Resolve reads and, for redemption feeds, composes the oracle's current
// price. now is the caller's unix-seconds clock used for quote staleness.
func (o TokenPriceOracle) Resolve(ctx context.Context, reader FeedReader, now int64) (PriceChange, error) {
	switch o.Kind {
	case KindPythPull:
		base, err := reader.Price(ctx, o.FeedID)
		if err != nil {
			return PriceChange{}, fmt.Errorf("read feed %s: %w", o.FeedID.Short(), err)
		}
		return fromUpdate(base), nil
	case KindPythPullRedemption:
		base, err := reader.Price(ctx, o.FeedID)
		if err != nil {
			return PriceChange{}, fmt.Errorf("read feed %s: %w", o.FeedID.Short(), err)
		}
		quote, err := reader.Price(ctx, o.QuoteFeedID)
		if err != nil {
			return PriceChange{}, fmt.Errorf("read quote feed %s: %w", o.QuoteFeedID.Short(), err)
		}
		return composeRedemption(base, quote, now)
	default:
		return PriceChange{}, ErrNoOracle
	}
}

func fromUpdate(u PriceUpdate) PriceChange {
	return PriceChange{
		Value:       u.Price,
		Confidence:  u.Confidence,
		Twap:        u.EmaPrice,
		PublishTime: u.PublishTime,
		Exponent:    u.Exponent,
	}
}

// composeRedemption prices a redemption-rate token in the quote currency.
// The composed price is base*quote; confidence compounds the base interval
// scaled by the quote price plus the quote interval; the publish time is the
// older of the two legs so staleness checks see the weakest link.
func composeRedemption(base, quote PriceUpdate, now int64) (PriceChange, error) {
	if base.Price <= 0 || quote.Price <= 0 {
		return PriceChange{}, ErrInvalidPrice
	}
	if now-quote.PublishTime > MaxPriceQuoteAgeSeconds {
		return PriceChange{}, ErrStaleQuote
	}

	basePrice := fixed.SignedFromPrice(base.Price, base.Exponent)
	quotePrice := fixed.SignedFromPrice(quote.Price, quote.Exponent)
	baseConf := fixed.SignedFromDecimal(base.Confidence, base.Exponent)
	quoteConf := fixed.SignedFromDecimal(quote.Confidence, quote.Exponent)
	baseTwap := fixed.SignedFromPrice(base.EmaPrice, base.Exponent)
	quoteTwap := fixed.SignedFromPrice(quote.EmaPrice, quote.Exponent)

	exponent := base.Exponent
	price := basePrice.Mul(quotePrice)
	confidence := baseConf.Mul(quotePrice).Add(quoteConf)
	twap := baseTwap.Mul(quoteTwap)

	publishTime := base.PublishTime
	if quote.PublishTime < publishTime {
		publishTime = quote.PublishTime
	}

	return PriceChange{
		Value:       int64(price.AsU64(exponent)),
		Confidence:  confidence.AsU64(exponent),
		Twap:        int64(twap.AsU64(exponent)),
		PublishTime: publishTime,
		Exponent:    exponent,
	}, nil
}

// Signed converts the resolved price into valuation units.
func (p PriceChange) Signed() fixed.Signed {
	return fixed.SignedFromPrice(p.Value, p.Exponent)
}
