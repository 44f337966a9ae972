/*
Package http implements the server side of HTTP/1.1 connections.

It provides the request and response model, a response writer, and Conn,
a per-connection state machine that turns a byte stream into a sequence of
request/response cycles. Routing and the accept loop live in the router
and server packages.

# Connection states

A Conn moves through the following states:

	IDLE -> AWAITING_REQUEST -> REQUEST_READY -> SENDING_RESPONSE -> IDLE
	                                                              \-> CLOSING -> CLOSED

Any framing violation moves the connection straight to CLOSED.

# Features

  - Content-Length and chunked request bodies, fully buffered
  - Keep-alive for HTTP/1.1; HTTP/1.0 connections close after one response
  - Expect: 100-continue interim responses
  - Date and Server default headers
  - Graceful half-close with drain on shutdown

# Usage

	c := http.NewConn(netConn, http.ConnConfig{ReadTimeout: 30 * time.Second})
	for {
		req, err := c.NextRequest()
		if err != nil {
			break
		}
		if err := c.SendResponse(http.Text(http.StatusOK, "hello\n")); err != nil {
			break
		}
		if c.MustClose() {
			break
		}
	}
	c.Shutdown()
*/
package http
