// Package proto holds the wire-level constants shared by every voxmesh
// peer: pubsub topic naming and discovery tags. Payload shapes live in
// internal/signal.
package proto

import "time"

const (
	// RoomTopicPrefix scopes one pubsub topic per voice room. The room key
	// (channel ID for room calls, DM channel ID for direct calls) is
	// appended verbatim.
	RoomTopicPrefix = "voxmesh.room.v1."

	// DirectTopicPrefix scopes 1:1 call topics so a DM call never collides
	// with a room of the same key.
	DirectTopicPrefix = "voxmesh.dm.v1."

	MdnsTag = "voxmesh-mdns"
)

// RoomTopic returns the pubsub topic name for a room key.
func RoomTopic(key string) string { return RoomTopicPrefix + key }

// DirectTopic returns the pubsub topic name for a 1:1 call key.
func DirectTopic(key string) string { return DirectTopicPrefix + key }

func NowMillis() int64 { return time.Now().UnixMilli() }
