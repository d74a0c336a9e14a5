// Package mqtt forwards workflow events to an MQTT broker so client
// apps and dashboards can follow story generation without polling.
//
// Every bus event is published, QoS 0 and not retained, to
// <prefix>/events/<source>/<kind> as JSON. A completed workflow is also
// published, QoS 1, to <prefix>/users/<user_id>/stories, which is the
// "your story is ready" notification. The connection is managed by
// Eclipse Paho v2's [autopaho] package with automatic reconnection; a
// will message flips <prefix>/availability to "offline" when the
// process disappears.
package mqtt
