// Package idp wires the SDK together.
//
// A Provider is created once per process from a config.Config. It owns the
// shared pieces: the database pool behind the data API, the token verifier,
// metrics and tracing, and the result of the client-secret check. Each
// signed-in user gets a Client from Provider.Connect, bundling an auth API
// connection, a session store and the auth, profile, organization and
// billing services bound to that session.
//
//	p, err := idp.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer p.Close(ctx)
//
//	c, err := p.Connect(ctx)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	if _, err := c.Auth().Login(ctx, auth.Credentials{Email: email, Password: pw}); err != nil {
//		return err
//	}
//	if c.Can("admin:read") == gate.Allowed {
//		...
//	}
//
// When a client secret is configured, authentication forms are blocked until
// the secret has been validated; see Provider.SubmissionAllowed.
package idp
