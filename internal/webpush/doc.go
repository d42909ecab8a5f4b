// Package webpush delivers encrypted notifications to browser push services.
//
// Payloads are encrypted per RFC 8291 into a single aes128gcm record (RFC 8188)
// and authorised with a VAPID assertion (RFC 8292).
package webpush
