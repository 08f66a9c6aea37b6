package claims

import (
	"encoding/json"
	"maps"
	"math"
	"time"
)

// Registered claim names from RFC 7519.
const (
	Issuer    = "iss"
	Subject   = "sub"
	Audience  = "aud"
	ExpiresAt = "exp"
	NotBefore = "nbf"
	IssuedAt  = "iat"
	ID        = "jti"
)

// View is the accessor surface token codecs work with.
type View interface {
	Payload() map[string]any
	Get(name string) (any, bool)
	Set(name string, value any)

	Issuer() string
	Subject() string
	Audience() []string
	ID() string
	IssuedAt() (time.Time, bool)
	NotBefore() (time.Time, bool)
	ExpiresAt() (time.Time, bool)
	ExpiresIn() (time.Duration, bool)
	Expired() bool
}

// Factory builds a concrete View over a decoded payload.
type Factory[T View] func(payload map[string]any) T

// Validator is implemented by views that require claims beyond signature checks.
// Token verification calls Validate after rebuilding the view.
type Validator interface {
	Validate() error
}

// Claims is the payload-backed View. The zero value is not usable; call New.
type Claims struct {
	payload map[string]any
	now     func() time.Time
}

var _ View = (*Claims)(nil)

// New wraps payload. The map is used directly, so writes through Claims are visible to
// the caller. A nil payload starts empty.
func New(payload map[string]any) *Claims {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Claims{payload: payload, now: time.Now}
}

// WithClock overrides the clock used by ExpiresIn, Expired, and SetExpiresIn.
func (c *Claims) WithClock(now func() time.Time) *Claims {
	if now != nil {
		c.now = now
	}
	return c
}

// Payload returns the underlying map.
func (c *Claims) Payload() map[string]any {
	return c.payload
}

// Clone returns an independent shallow copy.
func (c *Claims) Clone() *Claims {
	return &Claims{payload: maps.Clone(c.payload), now: c.now}
}

// Get returns a raw claim value.
func (c *Claims) Get(name string) (any, bool) {
	v, ok := c.payload[name]
	return v, ok
}

// Set writes a raw claim value. A nil value removes the claim.
func (c *Claims) Set(name string, value any) {
	if value == nil {
		delete(c.payload, name)
		return
	}
	c.payload[name] = value
}

// GetString returns a claim as a string when it holds one.
func (c *Claims) GetString(name string) (string, bool) {
	v, ok := c.payload[name].(string)
	return v, ok
}

// GetTime returns a NumericDate claim as a time.
func (c *Claims) GetTime(name string) (time.Time, bool) {
	v, ok := c.payload[name]
	if !ok {
		return time.Time{}, false
	}
	return numericTime(v)
}

func (c *Claims) Issuer() string  { s, _ := c.GetString(Issuer); return s }
func (c *Claims) Subject() string { s, _ := c.GetString(Subject); return s }
func (c *Claims) ID() string      { s, _ := c.GetString(ID); return s }

// Audience returns aud whether it was encoded as a string or an array. It is nil when unset.
func (c *Claims) Audience() []string {
	switch v := c.payload[Audience].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (c *Claims) IssuedAt() (time.Time, bool)  { return c.GetTime(IssuedAt) }
func (c *Claims) NotBefore() (time.Time, bool) { return c.GetTime(NotBefore) }

// ExpiresAt converts the absolute exp NumericDate.
func (c *Claims) ExpiresAt() (time.Time, bool) { return c.GetTime(ExpiresAt) }

// ExpiresIn returns the time left until exp. It is negative once the token has expired.
func (c *Claims) ExpiresIn() (time.Duration, bool) {
	exp, ok := c.ExpiresAt()
	if !ok {
		return 0, false
	}
	return exp.Sub(c.now()), true
}

// Expired reports whether exp lies in the past. Tokens without exp never expire.
func (c *Claims) Expired() bool {
	exp, ok := c.ExpiresAt()
	if !ok {
		return false
	}
	return !c.now().Before(exp)
}

func (c *Claims) SetIssuer(v string)  { c.setString(Issuer, v) }
func (c *Claims) SetSubject(v string) { c.setString(Subject, v) }
func (c *Claims) SetID(v string)      { c.setString(ID, v) }

// SetAudience stores a single audience as a string and several as an array.
func (c *Claims) SetAudience(aud ...string) {
	switch len(aud) {
	case 0:
		delete(c.payload, Audience)
	case 1:
		c.payload[Audience] = aud[0]
	default:
		c.payload[Audience] = append([]string(nil), aud...)
	}
}

func (c *Claims) SetIssuedAt(t time.Time)  { c.setTime(IssuedAt, t) }
func (c *Claims) SetNotBefore(t time.Time) { c.setTime(NotBefore, t) }
func (c *Claims) SetExpiresAt(t time.Time) { c.setTime(ExpiresAt, t) }

// SetExpiresIn sets exp to now + d.
func (c *Claims) SetExpiresIn(d time.Duration) {
	c.setTime(ExpiresAt, c.now().Add(d))
}

func (c *Claims) setString(name, v string) {
	if v == "" {
		delete(c.payload, name)
		return
	}
	c.payload[name] = v
}

func (c *Claims) setTime(name string, t time.Time) {
	if t.IsZero() {
		delete(c.payload, name)
		return
	}
	c.payload[name] = t.Unix()
}

// MarshalJSON encodes the payload.
func (c *Claims) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.payload)
}

// UnmarshalJSON replaces the payload, keeping numbers exact.
func (c *Claims) UnmarshalJSON(data []byte) error {
	payload, err := DecodePayload(data)
	if err != nil {
		return err
	}
	c.payload = payload
	if c.now == nil {
		c.now = time.Now
	}
	return nil
}

func numericTime(v any) (time.Time, bool) {
	switch n := v.(type) {
	case int64:
		return time.Unix(n, 0), true
	case int:
		return time.Unix(int64(n), 0), true
	case int32:
		return time.Unix(int64(n), 0), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return time.Time{}, false
		}
		sec, frac := math.Modf(n)
		return time.Unix(int64(sec), int64(frac*1e9)), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return time.Unix(i, 0), true
		}
		f, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return numericTime(f)
	default:
		return time.Time{}, false
	}
}
