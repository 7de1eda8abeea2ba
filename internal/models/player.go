package models

// Player is one participant in a room. The first player of every room is the GM.
type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	IsGameMaster bool   `json:"isGameMaster"`
}
