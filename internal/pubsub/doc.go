// Package pubsub provides typed topics with synchronous, in-order fan-out.
//
// A Topic delivers every published value to each current subscriber on the
// publishing goroutine, in subscription order. Subscribing and unsubscribing
// are both safe to call from inside a listener.
package pubsub
