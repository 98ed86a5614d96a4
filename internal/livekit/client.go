package livekit

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/imtaco/stream-coordinator/internal/errors"
	"github.com/imtaco/stream-coordinator/internal/jwt"
	"github.com/imtaco/stream-coordinator/internal/log"
)

const roomServicePath = "/twirp/livekit.RoomService/"

type twirpError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type listRoomsRequest struct {
	Names []string `json:"names,omitempty"`
}

type listRoomsResponse struct {
	Rooms []Room `json:"rooms"`
}

type createRoomRequest struct {
	Name         string `json:"name"`
	EmptyTimeout uint32 `json:"empty_timeout,omitempty"`
}

type deleteRoomRequest struct {
	Room string `json:"room"`
}

type roomServiceImpl struct {
	client       *resty.Client
	auth         jwt.Auth
	emptyTimeout uint32
	logger       *log.Logger
}

// NewRoomService creates a LiveKit RoomService client speaking Twirp JSON over resty.
func NewRoomService(cfg *Config, auth jwt.Auth, logger *log.Logger) RoomService {
	client := resty.New().
		SetBaseURL(httpURL(cfg.Host)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	return &roomServiceImpl{
		client:       client,
		auth:         auth,
		emptyTimeout: uint32(cfg.EmptyTimeout.Seconds()),
		logger:       logger,
	}
}

// httpURL accepts the ws(s):// form clients use and maps it to http(s)://.
func httpURL(host string) string {
	host = strings.TrimRight(host, "/")
	switch {
	case strings.HasPrefix(host, "ws://"):
		return "http://" + strings.TrimPrefix(host, "ws://")
	case strings.HasPrefix(host, "wss://"):
		return "https://" + strings.TrimPrefix(host, "wss://")
	}
	return host
}

func (s *roomServiceImpl) ListRooms(ctx context.Context, names []string) ([]Room, error) {
	var resp listRoomsResponse
	if err := s.call(ctx, "ListRooms", jwt.VideoGrant{RoomList: true}, &listRoomsRequest{Names: names}, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

func (s *roomServiceImpl) CreateRoom(ctx context.Context, name string) (*Room, error) {
	req := &createRoomRequest{
		Name:         name,
		EmptyTimeout: s.emptyTimeout,
	}
	var room Room
	if err := s.call(ctx, "CreateRoom", jwt.VideoGrant{RoomCreate: true}, req, &room); err != nil {
		return nil, err
	}
	if room.Name == "" {
		return nil, errors.Newf(ErrInvalidResponse, "create room %s: empty room in response", name)
	}
	return &room, nil
}

func (s *roomServiceImpl) DeleteRoom(ctx context.Context, name string) error {
	var resp struct{}
	return s.call(ctx, "DeleteRoom", jwt.VideoGrant{RoomCreate: true}, &deleteRoomRequest{Room: name}, &resp)
}

func (s *roomServiceImpl) call(ctx context.Context, method string, grant jwt.VideoGrant, req, result any) error {
	token, err := s.auth.Sign("", grant)
	if err != nil {
		return errors.Wrap(ErrFailedRequest, err, "sign room service token")
	}

	s.logger.Debug("livekit req", log.String("method", method), log.Any("body", req))

	var twerr twirpError
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(req).
		SetResult(result).
		SetError(&twerr).
		Post(roomServicePath + method)
	if err != nil {
		return errors.Wrapf(ErrFailedRequest, err, "livekit %s", method)
	}

	s.logger.Debug("livekit resp", log.String("method", method), log.Int("status", resp.StatusCode()))

	if resp.IsError() {
		return classify(method, resp.StatusCode(), &twerr)
	}
	return nil
}

func classify(method string, status int, twerr *twirpError) error {
	switch {
	case twerr.Code == "not_found" || status == http.StatusNotFound:
		return errors.Newf(ErrNotFound, "livekit %s: %s", method, twerr.Msg)
	case twerr.Code == "unauthenticated" || twerr.Code == "permission_denied" ||
		status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Newf(ErrUnauthorized, "livekit %s: %s", method, twerr.Msg)
	default:
		return errors.Newf(ErrInvalidResponse, "livekit %s: status %d code %q: %s", method, status, twerr.Code, twerr.Msg)
	}
}
