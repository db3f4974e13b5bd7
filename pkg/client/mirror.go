package client

import (
	"net/netip"
	"sort"

	"github.com/c2w-dev/c2w/pkg/model"
	"github.com/c2w-dev/c2w/pkg/protocol"
)

// mirror is the client's copy of the server directory.
type mirror struct {
	rooms  map[string]model.Room
	order  []string
	movies map[uint8]model.Movie
}

func newMirror() *mirror {
	return &mirror{
		rooms:  make(map[string]model.Room),
		movies: make(map[uint8]model.Movie),
	}
}

func (m *mirror) reset() {
	*m = *newMirror()
}

func (m *mirror) set(name string, room model.Room) {
	if _, ok := m.rooms[name]; !ok {
		m.order = append(m.order, name)
	}
	m.rooms[name] = room
}

func (m *mirror) remove(name string) {
	if _, ok := m.rooms[name]; !ok {
		return
	}
	delete(m.rooms, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func (m *mirror) addMovie(e protocol.MovieEntry) {
	m.movies[e.ID] = model.Movie{
		ID:    e.ID,
		Title: e.Title,
		Addr:  netip.AddrPortFrom(netip.AddrFrom4(e.Addr), e.Port),
	}
}

// room resolves a wire room id. Id 0 and ids with no known movie are the
// main room.
func (m *mirror) room(id uint8) model.Room {
	if mv, ok := m.movies[id]; ok {
		return mv.Room()
	}
	return model.MainRoom
}

func (m *mirror) movieByTitle(title string) (model.Movie, bool) {
	for _, mv := range m.movies {
		if mv.Title == title {
			return mv, true
		}
	}
	return model.Movie{}, false
}

func (m *mirror) users() []model.User {
	out := make([]model.User, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, model.User{Name: name, Room: m.rooms[name]})
	}
	return out
}

func (m *mirror) movieList() []model.Movie {
	out := make([]model.Movie, 0, len(m.movies))
	for _, mv := range m.movies {
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
