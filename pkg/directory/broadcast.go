package directory

import (
	"fmt"

	"github.com/c2w-dev/c2w/pkg/model"
	"github.com/c2w-dev/c2w/pkg/protocol"
)

// NotificationType returns the message type announcing a user's current
// room. justInitialized distinguishes a user entering the main room at
// the end of the login handshake (type 9) from a later move (type 11).
func NotificationType(room model.Room, justInitialized bool) protocol.MsgType {
	switch {
	case room.IsMain() && justInitialized:
		return protocol.TypeJoinedMain
	case room.IsMain():
		return protocol.TypeToMainRoom
	case room.IsOutOfSystem():
		return protocol.TypeLeftSystem
	default:
		return protocol.TypeToMovieRoom
	}
}

// Notification builds the notification announcing name's current room.
func (d *Directory) Notification(name string, justInitialized bool) (*protocol.Message, error) {
	u, ok := d.User(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUser, name)
	}
	return &protocol.Message{
		Type: NotificationType(u.Room, justInitialized),
		Body: &protocol.Notification{MovieID: d.RoomID(u.Room), Username: name},
	}, nil
}

// Others returns every registered user except exclude.
func (d *Directory) Others(exclude string) []Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Recipient, 0, len(d.order))
	for _, name := range d.order {
		if name == exclude {
			continue
		}
		out = append(out, Recipient{Name: name, Identity: d.users[name].identity})
	}
	return out
}

// SameRoom returns the users sharing name's room, excluding name.
func (d *Directory) SameRoom(name string) []Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sender, ok := d.users[name]
	if !ok {
		return nil
	}
	var out []Recipient
	for _, n := range d.order {
		e := d.users[n]
		if n == name || e.user.Room != sender.user.Room {
			continue
		}
		out = append(out, Recipient{Name: n, Identity: e.identity})
	}
	return out
}

// UserListFor builds the user list sent to recipient, which excludes the
// recipient itself.
func (d *Directory) UserListFor(recipient string) *protocol.UserList {
	d.mu.RLock()
	defer d.mu.RUnlock()
	list := &protocol.UserList{}
	for _, name := range d.order {
		if name == recipient {
			continue
		}
		room := d.users[name].user.Room
		var id uint8
		if room.IsMovie() {
			id = d.byTitle[room.Title()]
		}
		list.Users = append(list.Users, protocol.UserEntry{RoomID: id, Name: name})
	}
	return list
}

// MovieList builds the movie list message body.
func (d *Directory) MovieList() (*protocol.MovieList, error) {
	movies := d.Movies()
	list := &protocol.MovieList{}
	for _, m := range movies {
		addr, err := m.IPv4()
		if err != nil {
			return nil, err
		}
		list.Movies = append(list.Movies, protocol.MovieEntry{
			ID:    m.ID,
			Addr:  addr,
			Port:  m.Addr.Port(),
			Title: m.Title,
		})
	}
	return list, nil
}
