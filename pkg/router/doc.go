// Package router resolves request paths to handlers through nested tables
// of regular-expression patterns.
//
// Each pattern is matched against the start of the remaining path. The
// pattern consuming the longest prefix wins; two patterns tying for the
// longest prefix is reported as ErrAmbiguousRoute rather than guessed.
// When the winner is a nested Table, the unconsumed suffix is resolved
// there, and an exhausted path is served by the table's "/" entry.
// Named captures of every level are merged, inner levels overriding outer.
//
// Pattern shorthand:
//   - Named segment: /users/:id
//   - Trailing wildcard: /static/*
//   - Any Go regular expression: /v[12]/(?P<rest>.*)
//
// Example usage:
//
//	users := router.New()
//	users.HandleFunc("/", listUsers)
//	users.HandleFunc("/:id", showUser)
//
//	root := router.New()
//	root.Use(router.RecoveryMiddleware())
//	root.Mount("/users", users)
//	if err := root.Compile(); err != nil {
//		log.Fatal(err)
//	}
//	m, err := root.Match("/users/42") // m.Params["id"] == "42"
package router
