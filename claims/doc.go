// Package claims provides a typed view over a JWT payload.
//
// Registered claims (iss, sub, aud, exp, iat, nbf, jti) have typed getters and setters;
// every other claim goes through [Claims.Get] and [Claims.Set]. Time claims are stored as
// integer Unix seconds and converted to time.Time only at the accessor boundary.
//
// Applications extend the view by embedding *[Claims] in their own type, optionally
// overriding accessors or implementing [Validator] to require claims. Token decoding takes
// a [Factory] so it rebuilds the caller's type, not the base one.
package claims
