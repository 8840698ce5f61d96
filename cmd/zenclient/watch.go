package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aminofox/zenclient"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/realtime"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	usernameKey = "username"
	passwordKey = "password"
)

var (
	watchStream    string
	watchStatsOnly bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a stream's chat and statistics",
	Long: `Connects the public channel, joins the chat room of a stream and prints
chat lines and viewer statistics until interrupted. Rooms are joined again
after every reconnect. With --username the client signs in first, which
also connects the authenticated channel and prints incoming notifications.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchStream, "stream", "", "stream id to watch")
	watchCmd.Flags().BoolVar(&watchStatsOnly, "stats-only", false, "join for statistics without counting as a viewer")
	watchCmd.Flags().String("username", "", "sign in as this user")
	watchCmd.Flags().String("password", "", "password for --username (or ZENCLIENT_PASSWORD)")
	_ = watchCmd.MarkFlagRequired("stream")

	_ = viper.BindPFlag(usernameKey, watchCmd.Flags().Lookup("username"))
	_ = viper.BindPFlag(passwordKey, watchCmd.Flags().Lookup("password"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := zenclient.New(cfg)
	if err != nil {
		return err
	}
	log := client.Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := client.Stop(); err != nil {
			printErr("stop: %v", err)
		}
	}()

	if user := viper.GetString(usernameKey); user != "" {
		if err := client.Login(ctx, user, viper.GetString(passwordKey)); err != nil {
			return fmt.Errorf("login as %s: %w", user, err)
		}
		client.Auth().OnStreamNotification(func(n realtime.Notification) {
			fmt.Fprintf(cmd.OutOrStdout(), "* %s\n", n.Message)
		})
	}

	w := &watcher{
		pub:       client.Public(),
		stream:    watchStream,
		statsOnly: watchStatsOnly,
		out:       cmd.OutOrStdout(),
		logger:    log,
	}
	unwatch, err := w.start()
	if err != nil {
		return err
	}
	defer unwatch()

	log.Info("Watching stream", logger.String("stream_id", watchStream))
	<-ctx.Done()
	return nil
}

// watcher prints one stream's chat and stats and keeps its rooms joined
// across reconnects
type watcher struct {
	pub       *realtime.PublicSocket
	stream    string
	statsOnly bool
	out       io.Writer
	logger    logger.Logger
}

func (w *watcher) start() (stop func(), err error) {
	room, err := realtime.RoomEvent(realtime.KindChatMessage, w.stream)
	if err != nil {
		return nil, err
	}
	chat, err := w.pub.OnRoomChatMessage(w.stream, func(m realtime.ChatMessage) {
		if m.IsDeleted {
			return
		}
		fmt.Fprintf(w.out, "[%s] %s: %s\n", m.CreatedAt, m.Username, m.Message)
	})
	if err != nil {
		return nil, err
	}
	stats := w.pub.OnStreamStats(func(s realtime.StreamStatsSnapshot) {
		if string(s.StreamID) != w.stream {
			return
		}
		fmt.Fprintf(w.out, "# viewers=%d followers=%d subscribers=%d\n",
			s.Current.Viewers, s.Current.Followers, s.Current.Subscribers)
	})

	unwatch := w.pub.Socket().OnStateChange(func(s realtime.ConnectionState) {
		switch s {
		case realtime.StateConnected:
			w.join()
		case realtime.StateReconnecting:
			w.logger.Warn("Connection lost, rooms are joined again once it is back",
				logger.String("stream_id", w.stream))
		}
	})
	if w.pub.IsConnected() {
		w.join()
	} else {
		w.logger.Info("Waiting for the public channel", logger.String("stream_id", w.stream))
	}

	return func() {
		unwatch()
		if w.pub.IsConnected() {
			if err := w.pub.LeaveChatRoom(w.stream); err != nil {
				w.logger.Debug("Leaving chat room failed", logger.Err(err))
			}
			if err := w.pub.LeaveStream(w.stream); err != nil {
				w.logger.Debug("Leaving stream failed", logger.Err(err))
			}
		}
		w.pub.Off(room, chat)
		w.pub.Off(realtime.Event(realtime.KindStreamStats), stats)
	}, nil
}

// join subscribes to the stream and its chat and asks for the backlog
func (w *watcher) join() {
	if err := w.pub.JoinStream(w.stream, w.statsOnly); err != nil {
		w.logger.Warn("Joining stream failed", logger.Err(err))
		return
	}
	if err := w.pub.JoinChatRoom(w.stream); err != nil {
		w.logger.Warn("Joining chat room failed", logger.Err(err))
		return
	}
	if err := w.pub.GetAllMessages(w.stream); err != nil {
		w.logger.Warn("Chat backlog request failed", logger.Err(err))
	}
}
