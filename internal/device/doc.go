// Package device describes the attached Android device as the rest of the
// system sees it: identity, link state and screen geometry.
//
// The types here are plain values. They are produced by the adb package
// during discovery and handshake, carried by the connection supervisor, and
// rendered by the status board.
package device
