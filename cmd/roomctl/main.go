// Command roomctl is a terminal client for beatbus rooms.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/beatbus/room-sync/pkg/api"
	"github.com/beatbus/room-sync/pkg/session"
)

const usage = `Usage: roomctl [flags] <command> [args]

Commands:
  signup <username> <password>
  login <username> <password>
  logout
  create <room name>          create a room hosted by you
  join <room id> <password>   enter a room interactively
  rejoin                      enter the room you were last in
  queue <room id>
  metrics <room id>
  history <room id>
  send <room id>              mail or text the played songs (host only)
  delete <room id>            close a room (host only)

Flags:
`

type options struct {
	server      string
	sessionPath string
	maxUsers    int
	lifetime    int
	public      bool
	email       string
	phone       string
	verbose     bool
}

func main() {
	var opts options
	fs := flag.NewFlagSet("roomctl", flag.ExitOnError)
	fs.StringVarP(&opts.server, "server", "s", envOr("BEATBUS_SERVER", "http://localhost:8080"), "server base URL")
	fs.StringVar(&opts.sessionPath, "session", session.DefaultPath(), "session file")
	fs.IntVar(&opts.maxUsers, "max-users", 0, "room capacity for create")
	fs.IntVar(&opts.lifetime, "lifetime", 0, "room lifetime in minutes for create")
	fs.BoolVar(&opts.public, "public", false, "list the room publicly on create")
	fs.StringVar(&opts.email, "email", "", "recipient address for send")
	fs.StringVar(&opts.phone, "phone", "", "recipient phone number for send")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log connection details")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if opts.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	sess, err := session.Load(opts.sessionPath)
	if err != nil {
		logrus.Fatalf("Failed to load session: %v", err)
	}
	sess.Prune(time.Now())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &app{
		opts:   opts,
		sess:   sess,
		client: api.NewClient(strings.TrimRight(opts.server, "/") + "/api/v1").WithToken(sess.AccessToken),
	}
	runErr := app.run(ctx, args[0], args[1:])

	if err := sess.Save(opts.sessionPath); err != nil {
		logrus.Errorf("Failed to save session: %v", err)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}

type app struct {
	opts   options
	sess   *session.Session
	client *api.Client
}

var errUsage = errors.New("wrong number of arguments, see roomctl --help")

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "signup", "login":
		if len(args) != 2 {
			return errUsage
		}
		return a.login(ctx, cmd == "signup", args[0], args[1])
	case "logout":
		a.sess.Logout()
		fmt.Println("Logged out")
		return nil
	case "create":
		if len(args) == 0 {
			return errUsage
		}
		return a.create(ctx, strings.Join(args, " "))
	case "join":
		if len(args) != 2 {
			return errUsage
		}
		return a.join(ctx, args[0], args[1])
	case "rejoin":
		if a.sess.RoomID == "" {
			return errors.New("no room to rejoin")
		}
		return a.join(ctx, a.sess.RoomID, a.sess.RoomPassword)
	case "queue", "metrics", "history", "send", "delete":
		if len(args) != 1 {
			return errUsage
		}
		return a.query(ctx, cmd, args[0])
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) login(ctx context.Context, signUp bool, username, password string) error {
	var (
		login *api.Login
		err   error
	)
	if signUp {
		login, err = a.client.SignUp(ctx, username, password)
	} else {
		login, err = a.client.Login(ctx, username, password)
	}
	if err != nil {
		return err
	}
	a.sess.Username = login.Username
	a.sess.AccessToken = login.Token
	fmt.Printf("Logged in as %s\n", login.Username)
	return nil
}

func (a *app) requireLogin() error {
	if !a.sess.IsAuthenticated() {
		return errors.New("not logged in, run roomctl login first")
	}
	return nil
}

func (a *app) create(ctx context.Context, name string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	created, err := a.client.CreateRoom(ctx, api.CreateRoomRequest{
		RoomName: name,
		MaxUsers: a.opts.maxUsers,
		IsPublic: a.opts.public,
		Lifetime: a.opts.lifetime,
	})
	if err != nil {
		return err
	}
	a.sess.SetHostToken(created.RoomID, created.HostToken, created.ExpiresAt)
	a.sess.EnterRoom(created.RoomID, created.RoomPassword)

	fmt.Printf("Room %q created\n  id:       %s\n  password: %s\n  closes:   %s\n",
		name, created.RoomID, created.RoomPassword, created.ExpiresAt.Local().Format(time.Kitchen))
	return nil
}

func (a *app) hostToken(roomID string) (string, error) {
	token, ok := a.sess.HostToken(roomID, time.Now())
	if !ok {
		return "", fmt.Errorf("you are not the host of room %s", roomID)
	}
	return token, nil
}

func (a *app) query(ctx context.Context, cmd, roomID string) error {
	switch cmd {
	case "queue":
		playlist, err := a.client.Queue(ctx, roomID)
		if err != nil {
			return err
		}
		printPlaylist(os.Stdout, playlist.NowPlaying, playlist.Queue)
	case "metrics":
		m, err := a.client.Metrics(ctx, roomID)
		if err != nil {
			return err
		}
		printMetrics(os.Stdout, m)
	case "history":
		songs, err := a.client.History(ctx, roomID)
		if err != nil {
			return err
		}
		for i, s := range songs {
			fmt.Printf("%2d. %s - %s (+%d/-%d, added by %s)\n", i+1, s.Title, s.Artist, s.Likes, s.Dislikes, s.AddedBy)
		}
	case "send":
		token, err := a.hostToken(roomID)
		if err != nil {
			return err
		}
		if err := a.client.SendPlaylist(ctx, roomID, token, a.opts.email, a.opts.phone); err != nil {
			return err
		}
		fmt.Println("Playlist delivery scheduled")
	case "delete":
		token, err := a.hostToken(roomID)
		if err != nil {
			return err
		}
		if err := a.client.DeleteRoom(ctx, roomID, token); err != nil {
			return err
		}
		if a.sess.RoomID == roomID {
			a.sess.LeaveRoom()
		}
		delete(a.sess.HostTokens, roomID)
		fmt.Println("Room deleted")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
