package directory

import (
	"errors"
	"net/netip"
	"reflect"
	"sync"
	"testing"

	"github.com/c2w-dev/c2w/pkg/model"
	"github.com/c2w-dev/c2w/pkg/protocol"
)

type recordingStreamer struct {
	mu     sync.Mutex
	titles []string
}

func (s *recordingStreamer) StartStreaming(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
}

func newTestDirectory(t *testing.T) (*Directory, *recordingStreamer) {
	t.Helper()
	s := &recordingStreamer{}
	d := New(WithStreamer(s))
	movies := []model.Movie{
		{ID: 1, Title: "Up", Addr: netip.MustParseAddrPort("127.0.0.1:2001")},
		{ID: 2, Title: "Heat", Addr: netip.MustParseAddrPort("10.0.0.2:2002")},
	}
	for _, m := range movies {
		if err := d.AddMovie(m); err != nil {
			t.Fatalf("AddMovie(%v) error = %v", m.Title, err)
		}
	}
	return d, s
}

func TestRegister(t *testing.T) {
	d, _ := newTestDirectory(t)
	if err := d.Register("alice", model.OutOfSystem, "tcp/1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := d.Register("alice", model.MainRoom, "tcp/2")
	if !errors.Is(err, ErrNameTaken) {
		t.Fatalf("Register() duplicate error = %v, want ErrNameTaken", err)
	}

	u, ok := d.User("alice")
	if !ok || u.Room != model.OutOfSystem {
		t.Errorf("User(alice) = %+v, %v; duplicate mutated the directory", u, ok)
	}
	if u, ok := d.UserByIdentity("tcp/2"); ok {
		t.Errorf("UserByIdentity(tcp/2) = %+v, want none", u)
	}
	if u, ok := d.UserByIdentity("tcp/1"); !ok || u.Name != "alice" {
		t.Errorf("UserByIdentity(tcp/1) = %+v, %v", u, ok)
	}
}

func TestDeregister(t *testing.T) {
	d, _ := newTestDirectory(t)
	d.Register("alice", model.MainRoom, "tcp/1")
	d.Register("bob", model.MainRoom, "tcp/2")

	if !d.Deregister("alice") {
		t.Fatal("Deregister(alice) = false")
	}
	if d.Deregister("alice") {
		t.Error("second Deregister(alice) = true")
	}
	if d.Exists("alice") {
		t.Error("alice still exists")
	}
	if _, ok := d.UserByIdentity("tcp/1"); ok {
		t.Error("identity still mapped")
	}
	if got := d.Users(); len(got) != 1 || got[0].Name != "bob" {
		t.Errorf("Users() = %+v", got)
	}
}

func TestUsersKeepRegistrationOrder(t *testing.T) {
	d, _ := newTestDirectory(t)
	for _, n := range []string{"carol", "alice", "bob"} {
		d.Register(n, model.MainRoom, "id/"+n)
	}
	var names []string
	for _, u := range d.Users() {
		names = append(names, u.Name)
	}
	if want := []string{"carol", "alice", "bob"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Users() order = %v, want %v", names, want)
	}
}

func TestMovies(t *testing.T) {
	d, _ := newTestDirectory(t)
	if m, ok := d.Movie(2); !ok || m.Title != "Heat" {
		t.Errorf("Movie(2) = %+v, %v", m, ok)
	}
	if m, ok := d.MovieByTitle("Up"); !ok || m.ID != 1 {
		t.Errorf("MovieByTitle(Up) = %+v, %v", m, ok)
	}
	if _, ok := d.Movie(9); ok {
		t.Error("Movie(9) found")
	}

	tests := []struct {
		name  string
		movie model.Movie
	}{
		{"dup_id", model.Movie{ID: 1, Title: "Other", Addr: netip.MustParseAddrPort("1.2.3.4:1")}},
		{"dup_title", model.Movie{ID: 3, Title: "Up", Addr: netip.MustParseAddrPort("1.2.3.4:1")}},
		{"main_id", model.Movie{ID: 0, Title: "Zero", Addr: netip.MustParseAddrPort("1.2.3.4:1")}},
		{"ipv6", model.Movie{ID: 4, Title: "Six", Addr: netip.MustParseAddrPort("[::1]:1")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := d.AddMovie(tc.movie); err == nil {
				t.Error("AddMovie() error = nil")
			}
		})
	}
}

func TestJoinMovie(t *testing.T) {
	d, s := newTestDirectory(t)
	d.Register("alice", model.MainRoom, "tcp/1")

	room, err := d.JoinMovie("alice", 2)
	if err != nil {
		t.Fatalf("JoinMovie() error = %v", err)
	}
	if room != model.MovieRoom("Heat") {
		t.Errorf("room = %v, want movie:Heat", room)
	}
	if !reflect.DeepEqual(s.titles, []string{"Heat"}) {
		t.Errorf("streamed = %v", s.titles)
	}

	room, err = d.JoinMovie("alice", 0)
	if err != nil || room != model.MainRoom {
		t.Errorf("JoinMovie(0) = %v, %v", room, err)
	}
	if len(s.titles) != 1 {
		t.Errorf("main room started a stream: %v", s.titles)
	}

	if _, err := d.JoinMovie("alice", 7); !errors.Is(err, ErrUnknownMovie) {
		t.Errorf("JoinMovie(7) error = %v, want ErrUnknownMovie", err)
	}
	if _, err := d.JoinMovie("nobody", 1); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("JoinMovie(nobody) error = %v, want ErrUnknownUser", err)
	}
}

func TestUpdateRoomValidates(t *testing.T) {
	d, _ := newTestDirectory(t)
	d.Register("alice", model.MainRoom, "tcp/1")
	if err := d.UpdateRoom("alice", model.MovieRoom("Nope")); !errors.Is(err, ErrUnknownMovie) {
		t.Errorf("UpdateRoom() error = %v, want ErrUnknownMovie", err)
	}
	if err := d.UpdateRoom("bob", model.MainRoom); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("UpdateRoom() error = %v, want ErrUnknownUser", err)
	}
}

func TestNotificationTypes(t *testing.T) {
	tests := []struct {
		name            string
		room            model.Room
		justInitialized bool
		wantType        protocol.MsgType
		wantID          uint8
	}{
		{"movie_room", model.MovieRoom("Heat"), false, protocol.TypeToMovieRoom, 2},
		{"main_after_init", model.MainRoom, true, protocol.TypeJoinedMain, 0},
		{"main_later", model.MainRoom, false, protocol.TypeToMainRoom, 0},
		{"out_of_system", model.OutOfSystem, false, protocol.TypeLeftSystem, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, _ := newTestDirectory(t)
			d.Register("alice", model.OutOfSystem, "tcp/1")
			if err := d.UpdateRoom("alice", tc.room); err != nil {
				t.Fatalf("UpdateRoom() error = %v", err)
			}
			m, err := d.Notification("alice", tc.justInitialized)
			if err != nil {
				t.Fatalf("Notification() error = %v", err)
			}
			if m.Type != tc.wantType {
				t.Errorf("Type = %v, want %v", m.Type, tc.wantType)
			}
			want := &protocol.Notification{MovieID: tc.wantID, Username: "alice"}
			if !reflect.DeepEqual(m.Body, want) {
				t.Errorf("Body = %+v, want %+v", m.Body, want)
			}
		})
	}
}

func TestFanOut(t *testing.T) {
	d, _ := newTestDirectory(t)
	d.Register("alice", model.MainRoom, "tcp/a")
	d.Register("bob", model.MainRoom, "tcp/b")
	d.Register("carol", model.OutOfSystem, "tcp/c")
	d.Register("dave", model.MovieRoom("Up"), "tcp/d")

	got := d.SameRoom("alice")
	if want := []Recipient{{"bob", "tcp/b"}}; !reflect.DeepEqual(got, want) {
		t.Errorf("SameRoom(alice) = %+v, want %+v", got, want)
	}
	if got := d.SameRoom("dave"); len(got) != 0 {
		t.Errorf("SameRoom(dave) = %+v, want none", got)
	}
	if got := d.SameRoom("ghost"); got != nil {
		t.Errorf("SameRoom(ghost) = %+v", got)
	}

	others := d.Others("bob")
	want := []Recipient{{"alice", "tcp/a"}, {"carol", "tcp/c"}, {"dave", "tcp/d"}}
	if !reflect.DeepEqual(others, want) {
		t.Errorf("Others(bob) = %+v, want %+v", others, want)
	}
}

func TestUserListFor(t *testing.T) {
	d, _ := newTestDirectory(t)
	d.Register("alice", model.OutOfSystem, "tcp/a")
	if got := d.UserListFor("alice"); len(got.Users) != 0 {
		t.Errorf("UserListFor(alice) = %+v, want empty", got)
	}
	frame := protocol.MustEncode(&protocol.Message{Type: protocol.TypeUserList, Body: d.UserListFor("alice")})
	if len(frame) != 4 {
		t.Errorf("empty user list frame is %d bytes, want 4", len(frame))
	}

	d.Register("bob", model.MovieRoom("Heat"), "tcp/b")
	d.Register("carol", model.MainRoom, "tcp/c")
	want := &protocol.UserList{Users: []protocol.UserEntry{{RoomID: 2, Name: "bob"}, {RoomID: 0, Name: "carol"}}}
	if got := d.UserListFor("alice"); !reflect.DeepEqual(got, want) {
		t.Errorf("UserListFor(alice) = %+v, want %+v", got, want)
	}
}

func TestMovieList(t *testing.T) {
	d, _ := newTestDirectory(t)
	got, err := d.MovieList()
	if err != nil {
		t.Fatalf("MovieList() error = %v", err)
	}
	want := &protocol.MovieList{Movies: []protocol.MovieEntry{
		{ID: 1, Addr: [4]byte{127, 0, 0, 1}, Port: 2001, Title: "Up"},
		{ID: 2, Addr: [4]byte{10, 0, 0, 2}, Port: 2002, Title: "Heat"},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MovieList() = %+v, want %+v", got, want)
	}
}

func TestConcurrentAccess(t *testing.T) {
	d, _ := newTestDirectory(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			d.Register(name, model.MainRoom, "id/"+name)
			d.JoinMovie(name, uint8(i%3))
			d.SameRoom(name)
			d.Others(name)
			d.UserListFor(name)
			d.Snapshot()
			d.Deregister(name)
		}(i)
	}
	wg.Wait()
	if n := len(d.Users()); n != 0 {
		t.Errorf("Users() has %d entries, want 0", n)
	}
}
