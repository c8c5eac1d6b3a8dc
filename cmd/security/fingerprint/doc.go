// Package fingerprint derives one-way phone fingerprints for valentine records.
//
// A fingerprint is a stable 64-char lowercase hex digest of a normalized phone
// number. Stored fingerprints are compared against guesses; raw numbers are
// never compared directly.
//
// Modes:
// - hmac (default): HMAC-SHA256(phone, salt).
// - argon2id: Argon2id(phone, salt) with fixed parameters, hex encoded.
// - no salt configured: SHA-256(phone), for local development only.
//
// Environment:
// - VALENTINE_FINGERPRINT_SALT: process secret mixed into every fingerprint.
// - VALENTINE_FINGERPRINT_MODE: "hmac" or "argon2id".
//
// Changing the salt or mode invalidates every stored fingerprint.
package fingerprint
