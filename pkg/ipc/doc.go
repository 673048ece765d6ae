// Package ipc is the controller side of the render protocol.
//
// A Client sends page and stream render requests to the render service over
// a Unix domain socket. Connections are held in a Pool keyed by socket path
// and a Token carried in the request context; two goroutines holding
// different tokens never share a connection, and a connection serves one
// request at a time.
//
//	client, err := ipc.NewClient(ipc.Config{SocketPath: "tmp/sockets/viewbridge.sock"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	ctx = ipc.WithToken(ctx, ipc.NewToken())
//	doc, err := client.RenderPage(ctx, "users/index", protocol.Props{"users": users})
//
// Every failure crossing the package boundary is a *RendererError carrying
// the HTTP status the caller should respond with.
package ipc
