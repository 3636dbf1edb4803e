// Package tokenmanager owns the Sigen cloud credential lifecycle: acquiring a
// bearer token via password grant, refreshing it via refresh grant, persisting
// the resulting credential set, and deciding per call whether the stored
// credential is still usable.
//
// Sigen's token endpoint deviates from standard OAuth2 in ways that rule out
// golang.org/x/oauth2's built-in flows:
//   - Responses are wrapped in an application envelope {code, msg, data};
//     HTTP 200 with code != 0 is a failure.
//   - Both grants carry a non-standard userDeviceId parameter.
//
// The grant requests are therefore built directly, while Manager still
// satisfies oauth2.TokenSource so API clients can attach the credential
// through oauth2.Transport.
//
// # Usage
//
//	store, _ := credstore.NewFileStore(path)
//	mgr, _ := tokenmanager.New(store, tokenmanager.NewEndpoint(tokenURL, clientAuth), username, secret)
//	token, err := mgr.ActiveAccessToken(ctx)
package tokenmanager
