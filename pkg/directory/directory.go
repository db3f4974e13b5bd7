// Package directory is the server's authoritative table of users, movies
// and rooms, and computes notification and chat fan-out sets.
//
// All methods are safe for concurrent use; reads and writes are
// serialized by a single lock.
package directory

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c2w-dev/c2w/pkg/model"
)

// Directory errors.
var (
	ErrNameTaken    = errors.New("directory: user name already registered")
	ErrUnknownUser  = errors.New("directory: unknown user")
	ErrUnknownMovie = errors.New("directory: unknown movie")
	ErrDuplicate    = errors.New("directory: duplicate movie")
)

// Streamer is the movie streaming collaborator. StartStreaming is called
// whenever a user joins a movie room.
type Streamer interface {
	StartStreaming(title string)
}

// Recipient is a registered user a message should be delivered to.
// Identity is the transport identity the user registered with.
type Recipient struct {
	Name     string
	Identity string
}

// Snapshot is a point-in-time copy of the directory.
type Snapshot struct {
	Users  []model.User  `json:"users"`
	Movies []model.Movie `json:"movies"`
}

type entry struct {
	user     model.User
	identity string
}

// Directory holds registered users and the movie catalog.
type Directory struct {
	mu sync.RWMutex

	users      map[string]*entry
	order      []string
	byIdentity map[string]string

	movies  map[uint8]model.Movie
	byTitle map[string]uint8

	streamer Streamer
	logger   *slog.Logger
}

// Option configures a Directory.
type Option func(*Directory)

// WithStreamer sets the streaming collaborator.
func WithStreamer(s Streamer) Option {
	return func(d *Directory) { d.streamer = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Directory) { d.logger = l }
}

// New creates an empty directory.
func New(opts ...Option) *Directory {
	d := &Directory{
		users:      make(map[string]*entry),
		byIdentity: make(map[string]string),
		movies:     make(map[uint8]model.Movie),
		byTitle:    make(map[string]uint8),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "directory")
	return d
}

// AddMovie adds m to the catalog. Id 0 is reserved for the main room.
func (d *Directory) AddMovie(m model.Movie) error {
	if m.ID == 0 {
		return fmt.Errorf("%w: id 0 is the main room", ErrDuplicate)
	}
	if _, err := m.IPv4(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.movies[m.ID]; ok {
		return fmt.Errorf("%w: id %d", ErrDuplicate, m.ID)
	}
	if _, ok := d.byTitle[m.Title]; ok {
		return fmt.Errorf("%w: title %q", ErrDuplicate, m.Title)
	}
	d.movies[m.ID] = m
	d.byTitle[m.Title] = m.ID
	return nil
}

// Register adds a user in room, reachable at identity.
func (d *Directory) Register(name string, room model.Room, identity string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[name]; ok {
		return fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	d.users[name] = &entry{user: model.User{Name: name, Room: room}, identity: identity}
	d.order = append(d.order, name)
	d.byIdentity[identity] = name
	d.logger.Debug("user registered", "user", name, "identity", identity)
	return nil
}

// Deregister removes a user. It reports whether the user existed.
func (d *Directory) Deregister(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.users[name]
	if !ok {
		return false
	}
	delete(d.users, name)
	if d.byIdentity[e.identity] == name {
		delete(d.byIdentity, e.identity)
	}
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.logger.Debug("user deregistered", "user", name)
	return true
}

// Exists reports whether name is registered.
func (d *Directory) Exists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[name]
	return ok
}

// User looks up a user by name.
func (d *Directory) User(name string) (model.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.users[name]
	if !ok {
		return model.User{}, false
	}
	return e.user, true
}

// UserByIdentity looks up the user registered from a transport identity.
func (d *Directory) UserByIdentity(identity string) (model.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.byIdentity[identity]
	if !ok {
		return model.User{}, false
	}
	return d.users[name].user, true
}

// Users returns all users in registration order.
func (d *Directory) Users() []model.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.User, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.users[name].user)
	}
	return out
}

// Movie looks up a movie by id.
func (d *Directory) Movie(id uint8) (model.Movie, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.movies[id]
	return m, ok
}

// MovieByTitle looks up a movie by title.
func (d *Directory) MovieByTitle(title string) (model.Movie, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byTitle[title]
	if !ok {
		return model.Movie{}, false
	}
	return d.movies[id], true
}

// Movies returns the catalog ordered by id.
func (d *Directory) Movies() []model.Movie {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.moviesLocked()
}

func (d *Directory) moviesLocked() []model.Movie {
	out := make([]model.Movie, 0, len(d.movies))
	for _, m := range d.movies {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateRoom moves a user to room. Movie rooms must name a catalog movie.
func (d *Directory) UpdateRoom(name string, room model.Room) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.users[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUser, name)
	}
	if room.IsMovie() {
		if _, ok := d.byTitle[room.Title()]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMovie, room.Title())
		}
	}
	e.user.Room = room
	return nil
}

// JoinMovie moves a user to the room of movie id, or to the main room when
// id is 0, and signals the streamer for movie rooms.
func (d *Directory) JoinMovie(name string, id uint8) (model.Room, error) {
	room := model.MainRoom
	if id != 0 {
		m, ok := d.Movie(id)
		if !ok {
			return model.Room{}, fmt.Errorf("%w: id %d", ErrUnknownMovie, id)
		}
		room = m.Room()
	}
	if err := d.UpdateRoom(name, room); err != nil {
		return model.Room{}, err
	}
	if room.IsMovie() && d.streamer != nil {
		d.streamer.StartStreaming(room.Title())
	}
	return room, nil
}

// RoomID returns the wire id of room: the movie id for movie rooms and 0
// for everything else.
func (d *Directory) RoomID(room model.Room) uint8 {
	if !room.IsMovie() {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byTitle[room.Title()]
}

// Snapshot returns a copy of all users and movies.
func (d *Directory) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := Snapshot{
		Users:  make([]model.User, 0, len(d.order)),
		Movies: d.moviesLocked(),
	}
	for _, name := range d.order {
		s.Users = append(s.Users, d.users[name].user)
	}
	return s
}
