// internal/handlers/ws_codes.go
package handlers

// Application close codes sent on room sockets.
const (
	BadSubprotocolError = 3000 // client did not negotiate the drillroom subprotocol
	InvalidPlayerError  = 3002 // playerId is not seated in the room
	InvalidRoomError    = 3003 // room is not initialized
	RoomClosedError     = 3004 // the room dropped this subscriber
)

// Subprotocol is the only WebSocket subprotocol the room socket speaks.
const Subprotocol = "drillroom"
