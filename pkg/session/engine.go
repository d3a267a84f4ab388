package session

import (
	"crypto/subtle"
	"strings"
	"time"
)

// Decision is the outcome of the engine. Keep is zero; other values combine.
type Decision uint8

const (
	DecisionKeep       Decision = 0
	DecisionExtendIdle Decision = 1 << (iota - 1)
	DecisionRotate
	DecisionRejectExpired
	DecisionRejectStolen
	DecisionResend
	// DecisionSetAbsolute means the absolute deadline was filled in or cleared.
	DecisionSetAbsolute
)

var decisionNames = []struct {
	d    Decision
	name string
}{
	{DecisionExtendIdle, "extend-idle"},
	{DecisionRotate, "rotate"},
	{DecisionRejectExpired, "reject-expired"},
	{DecisionRejectStolen, "reject-stolen"},
	{DecisionResend, "resend"},
	{DecisionSetAbsolute, "set-absolute"},
}

func (d Decision) Has(f Decision) bool { return f != 0 && d&f == f }

// Rejected reports whether the record must not be used.
func (d Decision) Rejected() bool {
	return d.Has(DecisionRejectExpired) || d.Has(DecisionRejectStolen)
}

// Changed reports whether Advance modified the record.
func (d Decision) Changed() bool {
	return d.Has(DecisionExtendIdle) || d.Has(DecisionRotate) || d.Has(DecisionSetAbsolute)
}

func (d Decision) String() string {
	if d == DecisionKeep {
		return "keep"
	}
	var parts []string
	for _, n := range decisionNames {
		if d.Has(n.d) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Engine evaluates expiry, extension and renewal for a record. It never
// touches the store.
type Engine struct {
	rand  Rand
	token TokenSource
}

// NewEngine returns an engine. Nil arguments select math/rand and
// crypto/rand respectively.
func NewEngine(r Rand, token TokenSource) *Engine {
	if r == nil {
		r = defaultRand
	}
	if token == nil {
		token = randomToken
	}
	return &Engine{rand: r, token: token}
}

// Init fills the deadlines and the first renewal token of a record about to
// be inserted.
func (e *Engine) Init(rec *Record, now time.Time, eff Settings) {
	rec.IdleExpire, rec.AbsoluteExpire, rec.Renewal = nil, nil, nil
	if eff.IdleTimeout > 0 {
		rec.IdleExpire = ptr(now.Add(eff.IdleTimeout))
	}
	if eff.AbsoluteTimeout > 0 {
		rec.AbsoluteExpire = ptr(rec.Created.Add(eff.AbsoluteTimeout))
	}
	if eff.RenewalTimeout > 0 {
		rec.Renewal = &RenewalState{Current: e.token(), RotatedAt: now, GraceDeadline: now}
	}
}

// Check runs at load time. Absolute expiry is tested first, then idle
// expiry, then the renewal token.
func (e *Engine) Check(rec *Record, presented []byte, now time.Time, eff Settings) Decision {
	if rec.AbsoluteExpire != nil && !now.Before(*rec.AbsoluteExpire) {
		return DecisionRejectExpired
	}
	if rec.IdleExpire != nil && !now.Before(*rec.IdleExpire) {
		return DecisionRejectExpired
	}
	if eff.RenewalTimeout > 0 && rec.Renewal != nil {
		rs := rec.Renewal
		switch {
		case tokenEqual(presented, rs.Current):
		case len(rs.Previous) > 0 && tokenEqual(presented, rs.Previous) && now.Before(rs.GraceDeadline):
			return DecisionResend
		default:
			return DecisionRejectStolen
		}
	}
	return DecisionKeep
}

func tokenEqual(a, b []byte) bool {
	return len(a) > 0 && subtle.ConstantTimeCompare(a, b) == 1
}

// Advance runs at save time on a record that passed Check. wrote reports
// whether the request modified the record.
func (e *Engine) Advance(rec *Record, now time.Time, eff Settings, wrote bool) Decision {
	var d Decision

	switch {
	case eff.IdleTimeout > 0:
		if e.shouldExtend(rec, now, eff, wrote) {
			rec.IdleExpire = ptr(now.Add(eff.IdleTimeout))
			d |= DecisionExtendIdle
		}
	case rec.IdleExpire != nil:
		rec.IdleExpire = nil
		d |= DecisionExtendIdle
	}

	switch {
	case eff.AbsoluteTimeout > 0:
		if rec.AbsoluteExpire == nil {
			rec.AbsoluteExpire = ptr(rec.Created.Add(eff.AbsoluteTimeout))
			d |= DecisionSetAbsolute
		}
	case rec.AbsoluteExpire != nil:
		rec.AbsoluteExpire = nil
		d |= DecisionSetAbsolute
	}

	switch {
	case eff.RenewalTimeout > 0:
		if rec.Renewal == nil || !now.Before(rec.Renewal.RotatedAt.Add(eff.RenewalTimeout)) {
			e.rotate(rec, now, eff)
			d |= DecisionRotate
		}
	case rec.Renewal != nil:
		rec.Renewal = nil
		d |= DecisionRotate
	}

	return d
}

func (e *Engine) shouldExtend(rec *Record, now time.Time, eff Settings, wrote bool) bool {
	if rec.IdleExpire == nil || wrote {
		return true
	}
	if eff.ExtensionDelay > 0 {
		lastExtended := rec.IdleExpire.Add(-eff.IdleTimeout)
		if now.Sub(lastExtended) < eff.ExtensionDelay {
			return false
		}
	}
	if eff.ExtensionChance >= 100 {
		return true
	}
	if !now.Before(rec.IdleExpire.Add(-eff.ExtensionDeadline)) {
		return true
	}
	return e.rand.IntN(100) < eff.ExtensionChance
}

// rotate issues a new token. The single previous slot is overwritten.
func (e *Engine) rotate(rec *Record, now time.Time, eff Settings) {
	next := &RenewalState{Current: e.token(), RotatedAt: now, GraceDeadline: now.Add(eff.RenewalTryEvery)}
	if rec.Renewal != nil {
		next.Previous = rec.Renewal.Current
	}
	rec.Renewal = next
}
