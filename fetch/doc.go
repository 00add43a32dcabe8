// Package fetch is the HTTP exchange layer: Request and Response objects
// with streaming bodies, body-variant negotiation, multipart form encoding,
// and a redirect-following client built on the bridge and transport packages.
//
// # Bodies
//
// A request body is one of: text, raw bytes, a Blob, URL-encoded parameters,
// a FormData (streamed as multipart), or an existing ReadableStream. Every
// variant normalizes to a byte-producing ReadableStream plus an implied
// content type. All variants except the raw stream are replayable across
// redirect hops; a one-shot stream body combined with a 307/308 redirect
// fails rather than silently sending an empty body.
//
// # Redirects
//
// Client.Fetch follows up to MaxRedirects hops under the "follow" policy:
//
//	301, 302  POST rewrites to GET and the body is dropped
//	303       every method except GET/HEAD rewrites to GET, body dropped
//	307, 308  method and body are preserved
//
// Authorization, Cookie and Proxy-Authorization headers are stripped when a
// hop crosses origins. The "manual" policy returns the 3xx response as-is;
// "error" fails the exchange.
//
// Everything script-visible here is loop-confined, like the streams package.
package fetch
