package client

import "github.com/c2w-dev/c2w/pkg/model"

// Proxy receives the client's outward events. Methods are called without
// the client's lock held, in the order the events occurred, so they may
// call back into the Client.
type Proxy interface {
	// LoginRejected reports that the server refused the login.
	LoginRejected(reason string)

	// InitComplete delivers the directory once both lists have arrived.
	// users includes the local user, in the main room.
	InitComplete(users []model.User, movies []model.Movie)

	// UserRoomChanged reports another user's move. Room is OutOfSystem
	// when the user left.
	UserRoomChanged(name string, room model.Room)

	// ChatReceived delivers a chat message from the local user's room.
	ChatReceived(name, text string)

	// JoinRoomConfirmed reports that a JoinRoom request was acknowledged.
	JoinRoomConfirmed()

	// LeaveConfirmed reports that a LeaveSystem request was acknowledged.
	LeaveConfirmed()
}

// NopProxy ignores every event. Embed it to implement only some methods.
type NopProxy struct{}

func (NopProxy) LoginRejected(string)                    {}
func (NopProxy) InitComplete([]model.User, []model.Movie) {}
func (NopProxy) UserRoomChanged(string, model.Room)      {}
func (NopProxy) ChatReceived(string, string)             {}
func (NopProxy) JoinRoomConfirmed()                      {}
func (NopProxy) LeaveConfirmed()                         {}
