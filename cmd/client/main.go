// Command client is a terminal viewer for the synchronization engine,
// mostly useful for poking at rooms during development.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cinesync/client"
	"cinesync/internal/rooms"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "client",
	Short: "Terminal viewer for shared playback rooms",
}

var createCmd = &cobra.Command{
	Use:   "create [roomId]",
	Short: "Create a room and wait inside it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := rooms.GenerateRoomID()
		if len(args) == 1 {
			roomID = args[0]
		}
		content, err := cmd.Flags().GetString("content")
		if err != nil {
			return err
		}
		if !json.Valid([]byte(content)) {
			return fmt.Errorf("--content must be valid JSON")
		}

		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.CreateRoom(ctx, roomID, json.RawMessage(content)); err != nil {
			return err
		}

		fmt.Printf("room %s created\n", roomID)
		return run(c)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <roomId>",
	Short: "Join an existing room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		contentRef, err := c.JoinRoom(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("joined %s, content: %s\n", args[0], contentRef)
		return run(c)
	},
}

func dial() (*client.Client, error) {
	player := &consolePlayer{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, serverURL, player)
	if err != nil {
		return nil, err
	}
	player.rec = c.Reconciler()
	c.OnError = func(e client.ServerError) {
		fmt.Printf("! %s\n", e.Message)
	}
	return c, nil
}

// run reads control commands from stdin until EOF, quit, or the
// connection drops.
func run(c *client.Client) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	local := c.Player()
	for {
		select {
		case <-c.Done():
			fmt.Println("connection lost; rejoin with a fresh `client join`")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "play":
				local.Play()
			case "pause":
				local.Pause()
			case "seek":
				if len(fields) != 2 {
					fmt.Println("usage: seek <seconds>")
					continue
				}
				t, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					fmt.Println("usage: seek <seconds>")
					continue
				}
				local.SeekTo(t)
			case "episode":
				if len(fields) != 3 {
					fmt.Println("usage: episode <season> <episode>")
					continue
				}
				season, err1 := strconv.Atoi(fields[1])
				episode, err2 := strconv.Atoi(fields[2])
				if err1 != nil || err2 != nil {
					fmt.Println("usage: episode <season> <episode>")
					continue
				}
				local.SetEpisode(season, episode)
			case "season":
				if len(fields) != 2 {
					fmt.Println("usage: season <season>")
					continue
				}
				season, err := strconv.Atoi(fields[1])
				if err != nil {
					fmt.Println("usage: season <season>")
					continue
				}
				local.SetSeason(season)
			case "state":
				fmt.Printf("%+v\n", c.State())
			case "quit":
				return nil
			default:
				fmt.Println("commands: play, pause, seek, episode, season, state, quit")
			}
		}
	}
}

// consolePlayer prints every applied state change. It keeps its own
// position so play/pause notifications can carry it, the way a real
// player reports its current time.
type consolePlayer struct {
	rec     *client.Reconciler
	time    float64
	playing bool
}

func (p *consolePlayer) Play() {
	p.playing = true
	fmt.Printf("▶ playing at %.1fs\n", p.time)
	p.report(client.Change{Kind: client.ChangePlay, Time: p.time})
}

func (p *consolePlayer) Pause() {
	p.playing = false
	fmt.Printf("⏸ paused at %.1fs\n", p.time)
	p.report(client.Change{Kind: client.ChangePause, Time: p.time})
}

func (p *consolePlayer) SeekTo(seconds float64) {
	p.time = seconds
	fmt.Printf("⇥ seek to %.1fs\n", seconds)
	p.report(client.Change{Kind: client.ChangeSeek, Time: seconds})
}

func (p *consolePlayer) SetEpisode(season, episode int) {
	fmt.Printf("□ season %d episode %d\n", season, episode)
	p.report(client.Change{Kind: client.ChangeEpisode, Season: season, Episode: episode})
}

func (p *consolePlayer) SetSeason(season int) {
	fmt.Printf("□ season %d\n", season)
	p.report(client.Change{Kind: client.ChangeSeason, Season: season})
}

func (p *consolePlayer) report(change client.Change) {
	if p.rec != nil {
		p.rec.Notify(change)
	}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "engine base URL")
	createCmd.Flags().String("content", `{"title":"untitled"}`, "content reference JSON for the new room")
	rootCmd.AddCommand(createCmd, joinCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
