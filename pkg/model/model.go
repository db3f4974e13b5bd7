// Package model holds the c2w directory entities shared by the server and
// client roles.
package model

import (
	"fmt"
	"net/netip"
)

type roomKind uint8

const (
	kindOutOfSystem roomKind = iota
	kindMain
	kindMovie
)

// Room identifies where a user is: the main room, out of the system, or a
// movie room named by the movie's title. The zero value is OutOfSystem.
// Rooms are comparable and can be used as map keys.
type Room struct {
	kind  roomKind
	title string
}

// Sentinel rooms.
var (
	MainRoom    = Room{kind: kindMain}
	OutOfSystem = Room{kind: kindOutOfSystem}
)

// MovieRoom returns the room of the movie with the given title.
func MovieRoom(title string) Room {
	return Room{kind: kindMovie, title: title}
}

// IsMain reports whether r is the main room.
func (r Room) IsMain() bool { return r.kind == kindMain }

// IsOutOfSystem reports whether r is the out-of-system sentinel.
func (r Room) IsOutOfSystem() bool { return r.kind == kindOutOfSystem }

// IsMovie reports whether r is a movie room.
func (r Room) IsMovie() bool { return r.kind == kindMovie }

// Title returns the movie title of a movie room, or "" otherwise.
func (r Room) Title() string { return r.title }

// String returns a display name for the room.
func (r Room) String() string {
	switch r.kind {
	case kindMain:
		return "main"
	case kindMovie:
		return "movie:" + r.title
	default:
		return "out-of-system"
	}
}

// MarshalText implements encoding.TextMarshaler using String.
func (r Room) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Movie is an entry of the movie catalog.
type Movie struct {
	// ID is assigned by the server and stable for the process lifetime.
	ID    uint8  `json:"id"`
	Title string `json:"title"`
	// Addr is where the movie is streamed. Only IPv4 is representable on
	// the wire.
	Addr netip.AddrPort `json:"addr"`
}

// Room returns the movie's room.
func (m Movie) Room() Room {
	return MovieRoom(m.Title)
}

// IPv4 returns the four octets of the stream address.
func (m Movie) IPv4() ([4]byte, error) {
	a := m.Addr.Addr().Unmap()
	if !a.Is4() {
		return [4]byte{}, fmt.Errorf("model: movie %q address %s is not IPv4", m.Title, a)
	}
	return a.As4(), nil
}

// User is a registered user as seen by a directory.
type User struct {
	Name string `json:"name"`
	Room Room   `json:"room"`
}
