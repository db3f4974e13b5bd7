// Package errors provides the coded, actionable errors the c2w command
// prints when it cannot start.
//
// # Error Categories
//
//   - config: c2w.json cannot be read, parsed or validated (C100-C199)
//   - startup: a listener, catalog or other dependency failed (C200-C299)
//
// # Usage
//
//	err := errors.New("C102").
//	    WithLocation("c2w.json", 7, 15).
//	    WithSuggestion("Use a number of milliseconds, e.g. 500")
//
//	fmt.Println(err.Render(false))
//	// Output:
//	// ERROR C102: Invalid configuration value
//	//
//	//   c2w.json:7:15
//	//
//	//        6 │   "arq": {
//	//   →    7 │     "timeout_ms": "fast",
//	//          │               ^
//	//        8 │     "max_retries": 100
//	//
//	//   Hint: Use a number of milliseconds, e.g. 500
package errors
