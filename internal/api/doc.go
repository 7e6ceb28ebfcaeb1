// Package api serves the booking engine over HTTP.
//
// Routes:
//
//	GET  /available-slots           free blocks in the booking horizon
//	GET  /bookable-slots?duration=  blocks decomposed into fixed-length slots
//	POST /book                      reserve one slot
//	POST /contact                   relay a contact form message to the owner
//
// Every response carries CORS headers. Requests pass through panic recovery,
// request metrics, CORS and per-client rate limiting, in that order.
//
// AdminHandler serves the owner endpoints on a separate internal listener,
// without CORS and optionally behind a bearer secret:
//
//	GET  /token                     current access token
//	GET  /oauth/init                start the calendar authorization handshake
//	GET  /oauth/callback            complete the handshake
package api
