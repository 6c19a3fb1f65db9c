package api

import "buildnode/pkg/packet"

// PacketFactory turns a received frame into a packet.
type PacketFactory interface {
    CreateFromBytes(t packet.Type, payload []byte) (packet.Packet, error)
}

// PacketHandler consumes packets received from a node, in arrival order per
// node. Implementations must not block for long: they run on the node's
// receive goroutine.
type PacketHandler interface {
    HandlePacket(nodeID int, p packet.Packet)
}

// PacketHandlerFunc adapts a function to PacketHandler.
type PacketHandlerFunc func(nodeID int, p packet.Packet)

func (f PacketHandlerFunc) HandlePacket(nodeID int, p packet.Packet) { f(nodeID, p) }
