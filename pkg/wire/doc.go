// Package wire implements the HTTP/1.1 subset spoken over the render socket.
//
// Requests are always
//
//	METHOD PATH HTTP/1.1\r\n
//	Host: localhost\r\n
//	Connection: keep-alive\r\n
//	[Content-Type: application/json\r\n
//	 Content-Length: N\r\n]
//	\r\n
//	<body>
//
// Responses are read until the header delimiter, then the body is framed by
// Transfer-Encoding: chunked, Content-Length, or connection close, in that
// order. A response framed by connection close, or carrying
// "Connection: close", marks the connection as not reusable.
//
// The package performs no I/O of its own beyond the reader and writer it is
// handed; connection ownership lives in pkg/ipc.
package wire
