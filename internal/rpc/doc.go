// Package rpc implements the request/response and notification plumbing used
// to talk to the mixing service over a websocket.
//
// Requests are always sent as JSON text frames of the form
// {"method": ..., "params": ..., "id": ...}. Incoming frames are BSON when
// they arrive as binary frames and JSON when they arrive as text frames.
// A frame carrying an "id" is a response; anything else is a notification.
//
// The package has no knowledge of what the methods mean.
package rpc
