package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

// Client is the request/response API. Every request carries the participant's bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.SugaredLogger

	retries         uint64
	initialInterval time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetries enables retrying idempotent reads after a transport failure. Reads are not
// retried by default.
func WithRetries(n uint64, initial time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		c.initialInterval = initial
	}
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		token:           token,
		http:            &http.Client{Timeout: 10 * time.Second},
		logger:          logging.DefaultLogger(),
		initialInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// status is the envelope every endpoint shares.
type status struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var out struct {
		Rooms []domain.Room `json:"rooms"`
	}
	if err := c.get(ctx, "/api/rooms", &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

func (c *Client) RoomInfo(ctx context.Context, roomID int64) (domain.RoomInfo, error) {
	var info domain.RoomInfo
	if err := c.get(ctx, fmt.Sprintf("/api/rooms/%d/info", roomID), &info); err != nil {
		return domain.RoomInfo{}, err
	}
	if info.Room.ID == 0 {
		info.Room.ID = roomID
	}
	return info, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomID int64, password string) error {
	body := map[string]string{}
	if password != "" {
		body["password"] = password
	}
	return c.send(ctx, http.MethodPost, fmt.Sprintf("/api/rooms/join/%d", roomID), body, nil, false)
}

func (c *Client) LeaveRoom(ctx context.Context, roomID int64) error {
	return c.send(ctx, http.MethodPost, fmt.Sprintf("/api/rooms/leave/%d", roomID), nil, nil, false)
}

func (c *Client) Participants(ctx context.Context, roomID int64) ([]domain.Participant, error) {
	var out struct {
		Participants []domain.Participant `json:"participants"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/rooms/%d/participants", roomID), &out); err != nil {
		return nil, err
	}
	return out.Participants, nil
}

// Questions returns the room's ordered question list with upload paths made absolute.
func (c *Client) Questions(ctx context.Context, roomID int64) ([]domain.Question, error) {
	var out struct {
		Questions []domain.Question `json:"questions"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/questions/room/%d", roomID), &out); err != nil {
		return nil, err
	}
	for i := range out.Questions {
		out.Questions[i].ImageURL = out.Questions[i].ResolveImageURL(c.baseURL)
	}
	return out.Questions, nil
}

func (c *Client) AnsweredQuestionIDs(ctx context.Context, roomID int64) ([]int64, error) {
	var out struct {
		Answers []struct {
			QuestionID int64 `json:"question_id"`
		} `json:"answers"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/answers/my/%d", roomID), &out); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(out.Answers))
	for _, a := range out.Answers {
		ids = append(ids, a.QuestionID)
	}
	return ids, nil
}

// SubmitAnswer is never retried; the server decides whether a repeat counts.
func (c *Client) SubmitAnswer(ctx context.Context, submission domain.AnswerSubmission) error {
	return c.send(ctx, http.MethodPost, "/api/answers/submit", submission, nil, false)
}

func (c *Client) Leaderboard(ctx context.Context, scope domain.LeaderboardScope) ([]domain.LeaderboardRow, error) {
	path := "/api/answers/leaderboard-global"
	if !scope.Global() {
		path = fmt.Sprintf("/api/answers/leaderboard/%d", scope.RoomID)
	}
	var out struct {
		Leaderboard []domain.LeaderboardRow `json:"leaderboard"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Leaderboard, nil
}

func (c *Client) MyScore(ctx context.Context) (domain.ScoreSummary, error) {
	var out domain.ScoreSummary
	if err := c.get(ctx, "/api/users/me/score", &out); err != nil {
		return domain.ScoreSummary{}, err
	}
	return out, nil
}

func (c *Client) MyStatus(ctx context.Context, roomIDs []int64) ([]domain.RoomProgress, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	var out struct {
		Status []domain.RoomProgress `json:"status"`
	}
	body := map[string][]int64{"roomIds": roomIDs}
	if err := c.send(ctx, http.MethodPost, "/api/answers/my-status", body, &out, true); err != nil {
		return nil, err
	}
	return out.Status, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, out, true)
}

// send performs one call. When retries are enabled, idempotent calls are retried with backoff
// on transport failures only.
func (c *Client) send(ctx context.Context, method, path string, body, out any, idempotent bool) error {
	if !idempotent || c.retries == 0 {
		return c.do(ctx, method, path, body, out)
	}

	op := func() error {
		err := c.do(ctx, method, path, body, out)
		if err != nil && !errors.Is(err, domain.ErrTransport) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	notify := func(err error, wait time.Duration) {
		c.logger.Debugw("retrying request", "method", method, "path", path, "wait", wait, "error", err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx), notify)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", domain.ErrTransport, path, err)
	}

	var st status
	_ = json.Unmarshal(raw, &st)
	message := st.Message
	if message == "" {
		message = st.Error
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.APIError{Status: resp.StatusCode, Message: message, Err: domain.ErrUnauthorized}
	case resp.StatusCode == http.StatusNotFound:
		return &domain.APIError{Status: resp.StatusCode, Message: message, Err: domain.ErrRoomNotFound}
	case resp.StatusCode >= http.StatusInternalServerError:
		return &domain.APIError{Status: resp.StatusCode, Message: message, Err: domain.ErrTransport}
	case resp.StatusCode >= http.StatusBadRequest, st.Success != nil && !*st.Success:
		return &domain.APIError{Status: resp.StatusCode, Message: message, Err: domain.ErrRejected}
	}

	c.logger.Debugw("api call", "method", method, "path", path, "status", resp.StatusCode)
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
