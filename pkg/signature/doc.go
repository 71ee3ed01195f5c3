// Package signature signs and verifies HTTP payloads with HMAC-SHA256.
//
// The signed message is "<unix timestamp>.<payload>", so a captured request
// cannot be replayed outside the verifier's max-age window. Signatures are
// hex encoded and travel in the X-Webhook-Signature header next to
// X-Webhook-Timestamp and X-Webhook-ID.
//
// Signing an outgoing request:
//
//	h, err := signature.Sign(secret, body)
//	if err != nil {
//		return err
//	}
//	h.Apply(req.Header)
//
// Verifying an incoming one:
//
//	h, err := signature.FromHeader(r.Header)
//	if err == nil {
//		err = signature.Verify(secret, body, h, 5*time.Minute)
//	}
package signature
