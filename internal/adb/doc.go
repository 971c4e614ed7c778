// Package adb drives an Android device through the adb command-line tool.
//
// Every device operation is a short-lived adb child process. A Handle runs
// its children under its own context, so closing the Handle kills any call
// that is still blocked on a wedged USB link.
//
// Components:
//   - Connector: discovers the device and performs the handshake
//   - Handle: session.Handle implementation (input tap/swipe, screencap, shell)
//   - Parsers for "adb devices -l" and "wm size" output
//
// Usage:
//
//	conn := adb.NewConnector(adb.ConnectorOptions{Path: "adb"})
//	info, err := conn.Discover(ctx)
//	handle, info, err := conn.Authenticate(ctx, info)
package adb
