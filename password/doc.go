// Package password implements password hashing and verification with
// Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length, complexity) is enforced by the engine's input validation. Callers
// supply plaintext and receive hashes; nothing is stored or logged here.
package password
