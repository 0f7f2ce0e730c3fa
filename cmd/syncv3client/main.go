package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/matrix-org/sliding-sync-client/api"
	"github.com/matrix-org/sliding-sync-client/internal"
	"github.com/matrix-org/sliding-sync-client/pubsub"
	"github.com/matrix-org/sliding-sync-client/roomlist"
	"github.com/matrix-org/sliding-sync-client/slidingsync"
	"github.com/matrix-org/sliding-sync-client/sync3"
	"github.com/matrix-org/sliding-sync-client/timeline"
	"github.com/matrix-org/sliding-sync-client/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var GitCommit string

const version = "0.1.0"

const (
	// Required fields
	EnvToken = "SYNCV3_CLIENT_TOKEN"

	// Optional fields
	EnvSentryDsn    = "SYNCV3_CLIENT_SENTRY_DSN"
	EnvOTLP         = "SYNCV3_CLIENT_OTLP_URL"
	EnvOTLPUsername = "SYNCV3_CLIENT_OTLP_USERNAME"
	EnvOTLPPassword = "SYNCV3_CLIENT_OTLP_PASSWORD"
	EnvDebug        = "SYNCV3_CLIENT_DEBUG"
	EnvProm         = "SYNCV3_CLIENT_PROM"
)

var (
	flagDestinationServer = flag.String("server", "", "The sliding sync proxy to sync with")
	flagBindAddr          = flag.String("metrics", os.Getenv(EnvProm), "Bind address for /metrics, disabled if empty")
	flagBatchSize         = flag.Int64("batch", 20, "Number of rooms the all_rooms list grows by per request")
	flagMaxRooms          = flag.Int64("max-rooms", 0, "Stop growing all_rooms at this many rooms, 0 for no limit")
	flagPaginate          = flag.Int("paginate", 0, "Load this many events of history for each room which changes")
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

func main() {
	fmt.Printf("Sliding sync client version: %s (%s)\n", version, GitCommit)
	flag.Parse()
	args := map[string]string{
		EnvToken:        os.Getenv(EnvToken),
		EnvSentryDsn:    os.Getenv(EnvSentryDsn),
		EnvOTLP:         os.Getenv(EnvOTLP),
		EnvOTLPUsername: os.Getenv(EnvOTLPUsername),
		EnvOTLPPassword: os.Getenv(EnvOTLPPassword),
		EnvDebug:        os.Getenv(EnvDebug),
	}
	if *flagDestinationServer == "" || args[EnvToken] == "" {
		fmt.Fprintf(os.Stderr, "-server and %s must be set\n", EnvToken)
		flag.Usage()
		os.Exit(1)
	}
	if args[EnvDebug] == "1" {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if args[EnvSentryDsn] != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     args[EnvSentryDsn],
			Release: version,
		})
		if err != nil {
			panic(err)
		}
		defer sentry.Flush(2 * time.Second)
	}
	if args[EnvOTLP] != "" {
		shutdown, err := internal.ConfigureOTLP(context.Background(), internal.OTLPConfig{
			URL:      args[EnvOTLP],
			Username: args[EnvOTLPUsername],
			Password: args[EnvOTLPPassword],
			Version:  version,
		})
		if err != nil {
			panic(err)
		}
		defer shutdown(context.Background())
	}

	reg := prometheus.NewRegistry()
	metrics, err := pubsub.NewMetrics(reg, "observers")
	if err != nil {
		panic(err)
	}
	if *flagBindAddr != "" {
		r := mux.NewRouter()
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			logger.Info().Str("addr", *flagBindAddr).Msg("serving metrics")
			if err := http.ListenAndServe(*flagBindAddr, r); err != nil {
				logger.Err(err).Msg("metrics server stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := transport.NewHTTPClient(*flagDestinationServer, args[EnvToken], 5*time.Minute)
	transport.Version = version
	userID, deviceID, err := client.WhoAmI(ctx)
	if err != nil {
		exit(err)
	}
	logger.Info().Str("user", userID).Str("device", deviceID).Msg("authenticated")

	engine := slidingsync.New(slidingsync.Options{
		ConnID:   "syncv3client",
		UserID:   userID,
		Metrics:  metrics,
		Fetcher:  client,
		Delegate: api.NotificationDelegateFunc(logNotification),
	})
	defer engine.Close()
	addLists(engine)

	summaries := make(chan slidingsync.UpdateSummary, 16)
	go consume(ctx, engine, summaries)
	for {
		err = engine.Run(ctx, client, summaries)
		if errors.Is(err, sync3.ErrUnknownPos) {
			// a fresh session, the lists will be refreshed from scratch
			continue
		}
		break
	}
	if ctx.Err() != nil {
		logger.Info().Msg("interrupted, shutting down")
		return
	}
	exit(err)
}

func addLists(engine *slidingsync.SlidingSync) {
	requiredState := [][2]string{
		{"m.room.name", ""},
		{"m.room.avatar", ""},
		{"m.room.canonical_alias", ""},
		{"m.room.encryption", ""},
		{"m.room.member", "$LAZY"},
	}
	allRooms, _ := engine.AddList(roomlist.Options{
		Name:          "all_rooms",
		Mode:          roomlist.Growing{BatchSize: *flagBatchSize, MaxRooms: *flagMaxRooms},
		TimelineLimit: 1,
		RequiredState: requiredState,
	})
	isDM := true
	engine.AddList(roomlist.Options{
		Name:          "dms",
		Mode:          roomlist.Selective{Ranges: sync3.SliceRanges{{0, 9}}},
		Filters:       &sync3.RequestFilters{IsDM: &isDM},
		TimelineLimit: 1,
		RequiredState: requiredState,
	})
	state, _ := api.SubscribeRoomListState(allRooms, stateLogger{allRooms.Name()})
	logger.Info().Str("list", allRooms.Name()).Stringer("state", state).Msg("list added")
}

type stateLogger struct {
	list string
}

func (s stateLogger) DidReceiveState(state roomlist.State) {
	logger.Info().Str("list", s.list).Stringer("state", state).Msg("list state changed")
}

func consume(ctx context.Context, engine *slidingsync.SlidingSync, summaries <-chan slidingsync.UpdateSummary) {
	paginated := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case summary := <-summaries:
			for _, name := range summary.Lists {
				list := engine.List(name)
				if list == nil {
					continue
				}
				count, _ := list.Count()
				logger.Info().Str("list", name).Stringer("state", list.State()).Int("loaded", list.Len()).Int("count", count).Msg("list updated")
			}
			logger.Info().Int("rooms", len(summary.Rooms)).Msg("rooms updated")
			if *flagPaginate <= 0 {
				continue
			}
			for _, roomID := range summary.Rooms {
				if paginated[roomID] {
					continue
				}
				paginated[roomID] = true
				res, err := engine.Paginate(ctx, roomID, timeline.UntilNumItems{EventLimit: 20, Items: *flagPaginate})
				if err != nil {
					logger.Warn().Str("room", roomID).Bytes("error", api.ToClientError(err).JSON()).Msg("failed to paginate")
					continue
				}
				logger.Info().Str("room", roomID).Int("len", res.Len).Bool("start", res.ReachedStart).Msg("paginated")
			}
		}
	}
}

func logNotification(item api.NotificationItem) {
	l := logger.Info().Str("room", item.RoomDisplayName).Bool("noisy", item.IsNoisy).Bool("dm", item.IsDirect)
	if item.SenderDisplayName != nil {
		l = l.Str("sender", *item.SenderDisplayName)
	}
	l.RawJSON("event", item.Event).Msg("notification")
}

func exit(err error) {
	os.Stderr.Write(api.ToClientError(err).JSON())
	os.Stderr.Write([]byte("\n"))
	os.Exit(1)
}
