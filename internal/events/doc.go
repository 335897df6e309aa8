// Package events bridges the controller core and the MQTT bus.
//
// Publisher is a controller.Observer. It queues resolution and dispatch
// events on a bounded channel and publishes them from a single worker, so a
// slow or absent broker never delays a dispatch. Events that arrive while
// the queue is full are dropped and counted.
//
// CommandListener subscribes to roomgate/command/+ and dispatches each
// request through the controller core, replying on roomgate/response/{id}.
package events
