// Package errors provides coded, structured errors for the derive engine.
//
// Every error carries a stable code (e.g. "E001") that maps to a registered
// template with a short message, a longer explanation and a documentation URL.
// Programmer errors such as writing to a derived store are raised as panics
// carrying a *DeriveError; runtime failures such as a panicking derivation are
// wrapped and reported to the scheduler's error handler.
//
// # Error Codes
//
//   - E001..E009: engine usage and runtime errors
//   - E010..E019: query store errors
//   - E020..E029: configuration errors
//
// # Usage
//
//	err := errors.New("E002").
//	    WithStore("cart-total").
//	    Wrap(cause)
//
//	fmt.Println(err.Format())
//	// ERROR E002: Derivation panicked
//	//
//	//   store: cart-total
//	//
//	//   A derivation function panicked while recomputing. ...
package errors
