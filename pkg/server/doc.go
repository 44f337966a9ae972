// Package server runs HTTP/1.1 connections against a router table.
//
// Each accepted connection gets its own goroutine running a strictly
// sequential request loop: read a request, resolve it, run the handler,
// send the response, then either wait for the next request or shut the
// connection down gracefully.
//
// The server supports:
//   - Keep-alive, Connection: close and Expect: 100-continue
//   - 404 for unmatched paths, optionally falling back to static files
//   - 500 for handler errors without dropping the connection
//   - Graceful shutdown that drains in-flight requests
//   - Optional io_uring transport on Linux
//
// Example usage:
//
//	table := router.New()
//	table.Handle("/health", server.HealthHandler())
//	srv, err := server.New(server.Config{Addr: ":8080"}, table)
//	if err != nil {
//		log.Fatal(err)
//	}
//	go srv.ListenAndServe()
//	...
//	srv.Shutdown(ctx)
package server
