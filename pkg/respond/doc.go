// Package respond writes render results to controller responses.
//
// It negotiates between full documents and patch streams, copies the render
// timing headers through, and turns render failures into responses that
// keep the render service's status:
//
//	rs := respond.New(client, respond.Options{Debug: cfg.Debug})
//
//	r.Post("/users", func(w http.ResponseWriter, r *http.Request) {
//	    u := createUser(r)
//	    if !respond.WantsStream(r) {
//	        respond.Redirect(w, r, "/users")
//	        return
//	    }
//	    rs.Stream(w, r, func(s *protocol.Stream) error {
//	        if err := s.Append(protocol.Target("users"), "components/UserRow", protocol.Props{"user": u}); err != nil {
//	            return err
//	        }
//	        return respond.Success(s, "User created")
//	    })
//	})
//
// # Errors
//
// A failed stream request is answered with an update envelope on the
// "flash" element (or Options.ErrorTarget / Options.ErrorTargets) so the
// page can show it in place. Other requests get a small HTML error page.
// Bodies of 5xx responses read "Internal Server Error" unless
// Options.Debug is set.
package respond
