// Package api exposes the control plane over HTTP. Each concern has its
// own handler set registered on a shared gorilla/mux router. Handlers
// authorize through the capability checker before touching services and
// translate domain errors into HTTP status codes.
package api
