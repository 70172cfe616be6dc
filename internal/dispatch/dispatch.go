// Package dispatch is the per-poll entry point: it authenticates the
// request, decodes inbound frames, applies them to the shared state in
// arrival order and drains the session's outbound queue into the response.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikoto-dev/banchod/internal/channel"
	"github.com/mikoto-dev/banchod/internal/config"
	"github.com/mikoto-dev/banchod/internal/match"
	"github.com/mikoto-dev/banchod/internal/packet"
	"github.com/mikoto-dev/banchod/internal/session"
	"github.com/mikoto-dev/banchod/internal/spectator"
	"github.com/mikoto-dev/banchod/internal/store"
)

// ErrAuthRequired reports a poll with a missing or unknown token. The
// request is rejected before any state mutation.
var ErrAuthRequired = errors.New("dispatch: authentication required")

// LobbyChannel is where rooms are announced to browsing clients.
const LobbyChannel = "#lobby"

type handlerFunc func(d *Dispatcher, s *session.Session, r *packet.Reader) error

// Dispatcher wires the registry, channel table, match table, spectator
// relay and persistence collaborators behind the single poll entry point.
type Dispatcher struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *session.Registry
	channels *channel.Table
	matches  *match.Table
	relay    *spectator.Relay
	store    store.Store

	handlers map[packet.OpCode]handlerFunc
}

func New(
	cfg *config.Config,
	log *zap.Logger,
	registry *session.Registry,
	channels *channel.Table,
	matches *match.Table,
	relay *spectator.Relay,
	st store.Store,
) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		log:      log.Named("dispatch"),
		registry: registry,
		channels: channels,
		matches:  matches,
		relay:    relay,
		store:    st,
	}
	d.handlers = map[packet.OpCode]handlerFunc{
		packet.ClientChangeAction:        (*Dispatcher).handleChangeAction,
		packet.ClientSendPublicMessage:   (*Dispatcher).handlePublicMessage,
		packet.ClientLogout:              (*Dispatcher).handleLogout,
		packet.ClientRequestStatsUpdate:  (*Dispatcher).handleRequestStatsUpdate,
		packet.ClientPing:                (*Dispatcher).handlePing,
		packet.ClientStartSpectating:     (*Dispatcher).handleStartSpectating,
		packet.ClientStopSpectating:      (*Dispatcher).handleStopSpectating,
		packet.ClientSpectateFrames:      (*Dispatcher).handleSpectateFrames,
		packet.ClientCantSpectate:        (*Dispatcher).handleCantSpectate,
		packet.ClientSendPrivateMessage:  (*Dispatcher).handlePrivateMessage,
		packet.ClientPartLobby:           (*Dispatcher).handlePartLobby,
		packet.ClientJoinLobby:           (*Dispatcher).handleJoinLobby,
		packet.ClientCreateMatch:         (*Dispatcher).handleCreateMatch,
		packet.ClientJoinMatch:           (*Dispatcher).handleJoinMatch,
		packet.ClientPartMatch:           (*Dispatcher).handlePartMatch,
		packet.ClientMatchChangeSlot:     (*Dispatcher).handleMatchChangeSlot,
		packet.ClientMatchReady:          (*Dispatcher).handleMatchReady,
		packet.ClientMatchLock:           (*Dispatcher).handleMatchLock,
		packet.ClientMatchChangeSettings: (*Dispatcher).handleMatchChangeSettings,
		packet.ClientMatchStart:          (*Dispatcher).handleMatchStart,
		packet.ClientMatchScoreUpdate:    (*Dispatcher).handleMatchScoreUpdate,
		packet.ClientMatchComplete:       (*Dispatcher).handleMatchComplete,
		packet.ClientMatchChangeMods:     (*Dispatcher).handleMatchChangeMods,
		packet.ClientMatchLoadComplete:   (*Dispatcher).handleMatchLoadComplete,
		packet.ClientMatchNoBeatmap:      (*Dispatcher).handleMatchNoBeatmap,
		packet.ClientMatchNotReady:       (*Dispatcher).handleMatchNotReady,
		packet.ClientMatchFailed:         (*Dispatcher).handleMatchFailed,
		packet.ClientMatchHasBeatmap:     (*Dispatcher).handleMatchHasBeatmap,
		packet.ClientMatchSkipRequest:    (*Dispatcher).handleMatchSkipRequest,
		packet.ClientChannelJoin:         (*Dispatcher).handleChannelJoin,
		packet.ClientMatchTransferHost:   (*Dispatcher).handleMatchTransferHost,
		packet.ClientMatchChangeTeam:     (*Dispatcher).handleMatchChangeTeam,
		packet.ClientChannelPart:         (*Dispatcher).handleChannelPart,
		packet.ClientUserStatsRequest:    (*Dispatcher).handleUserStatsRequest,
		packet.ClientMatchChangePassword: (*Dispatcher).handleMatchChangePassword,
		packet.ClientUserPresenceRequest: (*Dispatcher).handlePresenceRequest,
		packet.ClientPresenceRequestAll:  (*Dispatcher).handlePresenceRequestAll,
	}
	return d
}

// Poll is the single request entry point. An empty token is a login
// attempt; otherwise the token must resolve or the caller is told to
// re-authenticate. Decoded events apply in arrival order; one bad event
// never aborts the rest, and a truncated suffix is logged without failing
// the request. The response is the session's drained queue.
func (d *Dispatcher) Poll(ctx context.Context, token string, body []byte) (resp []byte, newToken string, err error) {
	if token == "" {
		return d.login(ctx, body)
	}

	s, err := d.registry.ByToken(token)
	if err != nil {
		return nil, "", ErrAuthRequired
	}
	s.Touch()

	pkts, ferr := packet.Split(body)
	for _, p := range pkts {
		d.apply(s, p)
	}
	if ferr != nil {
		d.log.Warn("framing error in poll body",
			zap.Int32("user_id", s.ID), zap.Error(ferr))
	}
	return s.Drain(), token, nil
}

// apply routes one decoded event. Unknown opcodes were already skipped by
// the framer using the declared length; per-event failures map onto the
// error taxonomy: permission and conflict failures drop the event (with a
// denial notice where the client benefits), not-found is a resolved no-op.
func (d *Dispatcher) apply(s *session.Session, p packet.Packet) {
	h, ok := d.handlers[p.ID]
	if !ok {
		d.log.Debug("unhandled opcode skipped",
			zap.Uint16("opcode", uint16(p.ID)), zap.Int32("user_id", s.ID))
		return
	}
	err := h(d, s, packet.NewReader(p.Data))
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, packet.ErrTruncated):
		d.log.Warn("malformed payload dropped",
			zap.Uint16("opcode", uint16(p.ID)), zap.Int32("user_id", s.ID), zap.Error(err))
	case errors.Is(err, match.ErrNotHost), errors.Is(err, channel.ErrWriteDenied):
		s.Enqueue(packet.Notification("You aren't allowed to do that."))
		d.log.Info("permission denied",
			zap.Uint16("opcode", uint16(p.ID)), zap.Int32("user_id", s.ID), zap.Error(err))
	default:
		d.log.Debug("event dropped",
			zap.Uint16("opcode", uint16(p.ID)), zap.Int32("user_id", s.ID), zap.Error(err))
	}
}

// login authenticates "username\npassword_md5\nbuild..." and creates the
// session. The response volley mirrors what clients expect on connect:
// protocol version, user id, privileges, the channel listing, presences
// and stats.
func (d *Dispatcher) login(ctx context.Context, body []byte) ([]byte, string, error) {
	lines := strings.SplitN(string(body), "\n", 4)
	if len(lines) < 3 {
		return loginFailure("invalid login request"), "no", nil
	}
	username := strings.TrimRight(lines[0], "\r")
	passwordMD5 := strings.TrimRight(lines[1], "\r")
	build := strings.TrimRight(strings.SplitN(lines[2], "|", 2)[0], "\r")

	ident, err := d.store.Authenticate(ctx, username, passwordMD5)
	if err != nil {
		if errors.Is(err, store.ErrBadCredentials) {
			return loginFailure("Incorrect username or password."), "no", nil
		}
		d.log.Error("authentication backend failed", zap.Error(err))
		return loginFailure("Server error, try again later."), "no", nil
	}

	s, err := d.registry.Create(ident.UserID, ident.Username, ident.Privileges, build)
	if err != nil {
		if errors.Is(err, session.ErrNameTaken) {
			return loginFailure("This account is already online."), "no", nil
		}
		return loginFailure("Server error, try again later."), "no", nil
	}

	s.Enqueue(
		packet.ProtocolVersionPacket(),
		packet.UserID(s.ID),
		packet.Privileges(s.Privileges),
	)

	for _, c := range d.channels.All() {
		if c.Dynamic || !c.CanRead(s) {
			continue
		}
		if c.AutoJoin {
			s.Enqueue(packet.ChannelAutoJoin(c.Name, c.Topic, int16(c.Len())))
			if c.Join(s) {
				s.Enqueue(packet.ChannelJoinSuccess(c.Name))
			}
		} else {
			s.Enqueue(packet.ChannelInfo(c.Name, c.Topic, int16(c.Len())))
		}
	}
	s.Enqueue(packet.ChannelInfoEnd())

	s.Enqueue(packet.UserPresence(s.Presence()), packet.UserStats(s.Stats()))
	for _, other := range d.registry.Active() {
		if other.ID == s.ID {
			continue
		}
		s.Enqueue(packet.UserPresence(other.Presence()), packet.UserStats(other.Stats()))
		other.Enqueue(packet.UserPresence(s.Presence()), packet.UserStats(s.Stats()))
	}

	s.Enqueue(packet.Notification("Welcome back."))
	d.log.Info("login ok", zap.Int32("user_id", s.ID), zap.String("name", s.Name), zap.String("build", build))
	return s.Drain(), s.Token, nil
}

func loginFailure(reason string) []byte {
	out := packet.UserID(-1)
	return append(out, packet.Notification(reason)...)
}

// BroadcastSystemMessage pushes an announcement to every connected
// session. Exposed to external moderation tooling via the HTTP API.
func (d *Dispatcher) BroadcastSystemMessage(text string) {
	d.registry.Broadcast(nil, packet.Notification(text))
	d.log.Info("system message broadcast", zap.Int("recipients", d.registry.Len()))
}

// recordResult hands a settled round to the persistence collaborator. It
// runs on its own goroutine so no core lock is held across the write.
func (d *Dispatcher) recordResult(res match.Result) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.store.RecordMatchResult(ctx, res); err != nil {
			d.log.Error("recording match result failed",
				zap.Int32("match_id", res.MatchID), zap.Error(err))
		}
	}()
}
