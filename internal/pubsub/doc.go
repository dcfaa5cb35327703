// Package pubsub is the in-process message broker behind PUBLISH and
// SUBSCRIBE.
//
// A Hub indexes channel names to the subscribers listening on them. Each
// connection in subscriber mode owns one Subscriber, which may listen on
// any number of channels and receives every message on a single buffered
// Go channel. Delivery never blocks the publisher: when a subscriber's
// buffer is full the message is dropped for that subscriber and counted.
package pubsub
