// Package limiters implements brute-force protection for credential
// verification paths.
//
// [AttemptTracker] keeps one fixed-window Redis counter per (user, kind)
// pair, where kind names a verification path (password, email, totp,
// backup). Counters are independent: exhausting one path never locks out
// another. Crossing the threshold stretches the key TTL from the counting
// window to the lockout duration.
//
// # What this package must NOT do
//
//   - Inspect credentials. The tracker counts failures it is told about.
//   - Import authgate or any sibling internal package.
package limiters
