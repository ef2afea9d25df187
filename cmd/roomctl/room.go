package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/beatbus/room-sync/pkg/api"
	"github.com/beatbus/room-sync/pkg/models"
	"github.com/beatbus/room-sync/pkg/roomsync"
)

const roomHelp = `Room commands:
  add <title> - <artist>     queue a song
  like | dislike             vote on the current song
  skip                       skip the current song (host or the song's owner)
  remove <n>                 remove the n-th queued song
  move <n> <m>               move the n-th queued song to position m (host)
  kick <username>            remove a user (host)
  rename <name>              rename the room (host)
  say <message>              chat
  queue                      show the queue
  who                        show the room
  quit                       leave the room
`

func (a *app) join(ctx context.Context, roomID, password string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	if _, err := a.client.JoinCheck(ctx, roomID, password, a.sess.Username); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			a.sess.LeaveRoom()
		}
		return err
	}

	wsURL, err := websocketURL(a.opts.server)
	if err != nil {
		return err
	}
	manager := roomsync.NewManager(roomsync.Options{
		Transport: &roomsync.WebsocketTransport{URL: wsURL, Token: a.sess.AccessToken},
		Hooks: roomsync.Hooks{
			OnStatus: func(s roomsync.Status, err error) {
				if err != nil {
					fmt.Printf("* %s: %v\n", s, err)
					return
				}
				fmt.Printf("* %s\n", s)
			},
			OnNotice: func(n roomsync.Notice) {
				fmt.Printf("! %s\n", n.Message)
			},
			OnChat: func(username, message string) {
				fmt.Printf("<%s> %s\n", username, message)
			},
		},
	})
	defer manager.Close()

	handle, err := manager.Connect(ctx, roomID, a.sess.Username, password)
	if err != nil {
		return err
	}
	a.sess.EnterRoom(roomID, password)
	fmt.Print(roomHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-handle.Done():
			if handle.Status() == roomsync.StatusRoomGone || handle.Status() == roomsync.StatusAuthFailed {
				a.sess.LeaveRoom()
			}
			return handle.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(handle, os.Stdout, line)
			if err != nil {
				fmt.Printf("! %v\n", err)
			}
			if quit {
				a.sess.LeaveRoom()
				manager.Disconnect(handle)
				return nil
			}
		}
	}
}

// execute runs one room command line. It reports whether the user asked to leave.
func execute(h *roomsync.Handle, w io.Writer, line string) (bool, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprint(w, roomHelp)
	case "add":
		title, artist, _ := strings.Cut(rest, " - ")
		if strings.TrimSpace(title) == "" {
			return false, errors.New("usage: add <title> - <artist>")
		}
		return false, h.AddSong(strings.TrimSpace(title), strings.TrimSpace(artist), "")
	case "like":
		return false, h.Vote(roomsync.DirectionLike)
	case "dislike":
		return false, h.Vote(roomsync.DirectionDislike)
	case "skip":
		return false, h.Skip()
	case "remove":
		item, err := queued(h, rest)
		if err != nil {
			return false, err
		}
		return false, h.RemoveSong(item.Song.SongID)
	case "move":
		from, to, _ := strings.Cut(rest, " ")
		return false, move(h, from, strings.TrimSpace(to))
	case "kick":
		return false, h.RemoveUser(rest)
	case "rename":
		room := h.Room()
		if room == nil {
			return false, roomsync.ErrNotConnected
		}
		settings := room.Settings
		settings.RoomName = rest
		return false, h.UpdateSettings(settings)
	case "say":
		return false, h.SendMessage(rest)
	case "queue":
		v := h.View()
		if v.Room == nil {
			return false, roomsync.ErrNotConnected
		}
		printPlaylist(w, v.Room.NowPlaying, v.Room.Queue)
		for _, item := range v.Pending {
			fmt.Fprintf(w, "    %s - %s (adding...)\n", item.Song.Stats.Title, item.Song.Stats.Artist)
		}
	case "who":
		room := h.Room()
		if room == nil {
			return false, roomsync.ErrNotConnected
		}
		fmt.Fprintf(w, "%s (%s), hosted by %s, %d listening\n",
			room.Settings.RoomName, room.RoomID, room.Settings.HostUsername, room.NumberOfUsers)
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}

// queued returns the n-th unplayed song as shown by the queue command.
func queued(h *roomsync.Handle, n string) (models.QueueItem, error) {
	i, err := strconv.Atoi(n)
	if err != nil {
		return models.QueueItem{}, fmt.Errorf("not a queue position: %q", n)
	}
	room := h.Room()
	if room == nil {
		return models.QueueItem{}, roomsync.ErrNotConnected
	}
	unplayed := models.Unplayed(room.Queue)
	if i < 1 || i > len(unplayed) {
		return models.QueueItem{}, fmt.Errorf("no song at position %d", i)
	}
	return unplayed[i-1], nil
}

func move(h *roomsync.Handle, from, to string) error {
	item, err := queued(h, from)
	if err != nil {
		return err
	}
	j, err := strconv.Atoi(to)
	if err != nil {
		return fmt.Errorf("not a queue position: %q", to)
	}

	var ids []string
	for _, it := range models.Unplayed(h.Room().Queue) {
		if it.Song.SongID != item.Song.SongID {
			ids = append(ids, it.Song.SongID)
		}
	}
	j = min(max(j, 1), len(ids)+1)
	ids = append(ids[:j-1], append([]string{item.Song.SongID}, ids[j-1:]...)...)
	return h.Reorder(ids)
}

func printPlaylist(w io.Writer, nowPlaying *models.Song, queue []models.QueueItem) {
	if nowPlaying != nil {
		fmt.Fprintf(w, "Now playing: %s - %s (+%d/-%d)\n",
			nowPlaying.Stats.Title, nowPlaying.Stats.Artist, nowPlaying.Metadata.Likes, nowPlaying.Metadata.Dislikes)
	} else {
		fmt.Fprintln(w, "Nothing playing")
	}
	for i, item := range models.Unplayed(queue) {
		fmt.Fprintf(w, "%2d. %s - %s (added by %s)\n", i+1, item.Song.Stats.Title, item.Song.Stats.Artist, item.Song.Metadata.AddedBy)
	}
}

func printMetrics(w io.Writer, m *api.Metrics) {
	fmt.Fprintf(w, "Room %s: %d listening, %d queued, %d played\n", m.RoomID, m.RoomSize, m.QueueLength, m.SongsPlayed)
	if m.MostLiked != nil {
		fmt.Fprintf(w, "Most liked:    %s - %s (%d)\n", m.MostLiked.Title, m.MostLiked.Artist, m.MostLiked.Likes)
	}
	if m.MostDisliked != nil {
		fmt.Fprintf(w, "Most disliked: %s - %s (%d)\n", m.MostDisliked.Title, m.MostDisliked.Artist, m.MostDisliked.Dislikes)
	}
	if m.TopContributor != nil {
		fmt.Fprintf(w, "Top DJ:        %s (%d songs)\n", m.TopContributor.Username, m.TopContributor.Songs)
	}
}

// websocketURL maps http://host to ws://host/api/v1/ws.
func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("failed to parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.JoinPath("api", "v1", "ws").String(), nil
}
