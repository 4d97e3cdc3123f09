package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"quiz-session-engine/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			http.Error(w, `{"success":false,"message":"no token"}`, http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "tok", WithRetries(2, time.Millisecond)), srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestQuestionsResolvesUploadPaths(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/questions/room/4" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, `{"success":true,"questions":[
			{"id":1,"question_text":"q1","options":["a","b"],"correct_option_index":1,"image_url":"/uploads/1.png"},
			{"id":2,"question_text":"q2","options":"[\"c\",\"d\"]","correct_option_index":0}
		]}`)
	})

	questions, err := client.Questions(testContext(t), 4)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].ImageURL != srv.URL+"/uploads/1.png" {
		t.Fatalf("unexpected image url %s", questions[0].ImageURL)
	}
	if len(questions[1].Options) != 2 || questions[1].Options[1] != "d" {
		t.Fatalf("options not decoded: %v", questions[1].Options)
	}
}

func TestSubmitAnswerSendsBody(t *testing.T) {
	var got domain.AnswerSubmission
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/answers/submit" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeJSON(w, http.StatusOK, `{"success":true,"message":"saved"}`)
	})

	elapsed := int64(1500)
	err := client.SubmitAnswer(testContext(t), domain.AnswerSubmission{RoomID: 3, QuestionID: 9, SelectedIndex: 2, ElapsedMs: &elapsed})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.RoomID != 3 || got.QuestionID != 9 || got.SelectedIndex != 2 || got.ElapsedMs == nil || *got.ElapsedMs != 1500 {
		t.Fatalf("unexpected submission %+v", got)
	}
}

func TestRejectionCarriesServerMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":false,"message":"Time is over"}`)
	})

	err := client.SubmitAnswer(testContext(t), domain.AnswerSubmission{RoomID: 1, QuestionID: 1})
	if !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if msg := domain.UserMessage(err, "fallback"); msg != "Time is over" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestStatusCodesMapToSentinels(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:        domain.ErrUnauthorized,
		http.StatusForbidden:           domain.ErrUnauthorized,
		http.StatusNotFound:            domain.ErrRoomNotFound,
		http.StatusBadRequest:          domain.ErrRejected,
		http.StatusInternalServerError: domain.ErrTransport,
	}
	for status, want := range cases {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, status, `{"success":false}`)
		})
		if err := client.JoinRoom(testContext(t), 1, ""); !errors.Is(err, want) {
			t.Fatalf("status %d: expected %v, got %v", status, want, err)
		}
	}
}

func TestReadsRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusBadGateway, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"success":true,"answers":[{"question_id":4},{"question_id":6}]}`)
	})

	ids, err := client.AnsweredQuestionIDs(testContext(t), 2)
	if err != nil {
		t.Fatalf("answered: %v", err)
	}
	if len(ids) != 2 || ids[0] != 4 || ids[1] != 6 {
		t.Fatalf("unexpected ids %v", ids)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestReadsAreNotRetriedByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, `{}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	if _, err := client.ListRooms(testContext(t)); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestSubmitIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	})

	err := client.SubmitAnswer(testContext(t), domain.AnswerSubmission{RoomID: 1, QuestionID: 1})
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("submit should not retry, got %d calls", calls.Load())
	}
}

func TestRejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `{"success":false,"message":"nope"}`)
	})

	if _, err := client.ListRooms(testContext(t)); !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("rejection should not retry, got %d calls", calls.Load())
	}
}

func TestUnreachableServerIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, "tok", WithRetries(0, 0))
	if _, err := client.MyScore(testContext(t)); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestRoomInfoAndScopes(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/rooms/8/info":
			writeJSON(w, http.StatusOK, `{"success":true,"room":{"title":"Quiz","status":"started","visibility":"public"},"total":5,"completed":true}`)
		case "/api/answers/leaderboard-global":
			writeJSON(w, http.StatusOK, `{"success":true,"leaderboard":[{"username":"a","total_score":30}]}`)
		case "/api/answers/leaderboard/8":
			writeJSON(w, http.StatusOK, `{"success":true,"leaderboard":[{"username":"b","total_score":10},{"username":"c","total_score":5}]}`)
		case "/api/users/me/score":
			writeJSON(w, http.StatusOK, `{"success":true,"total_score":42,"correct":3,"answered":4}`)
		default:
			http.NotFound(w, r)
		}
	})

	info, err := client.RoomInfo(testContext(t), 8)
	if err != nil {
		t.Fatalf("room info: %v", err)
	}
	if info.Room.ID != 8 || info.Total != 5 || !info.Completed {
		t.Fatalf("unexpected info %+v", info)
	}

	global, err := client.Leaderboard(testContext(t), domain.LeaderboardScope{})
	if err != nil || len(global) != 1 {
		t.Fatalf("global leaderboard: %v %v", global, err)
	}
	room, err := client.Leaderboard(testContext(t), domain.LeaderboardScope{RoomID: 8})
	if err != nil || len(room) != 2 {
		t.Fatalf("room leaderboard: %v %v", room, err)
	}

	score, err := client.MyScore(testContext(t))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score.Total != 42 || score.Correct != 3 || score.Answered != 4 {
		t.Fatalf("unexpected score %+v", score)
	}

	if _, err := client.RoomInfo(testContext(t), 99); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMyStatusSkipsEmptyRequest(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body struct {
			RoomIDs []int64 `json:"roomIds"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.RoomIDs) != 2 {
			t.Errorf("unexpected room ids %v", body.RoomIDs)
		}
		writeJSON(w, http.StatusOK, `{"success":true,"status":[{"roomId":1,"participated":true,"completed":false},{"roomId":2,"participated":1,"completed":1}]}`)
	})

	if progress, err := client.MyStatus(testContext(t), nil); err != nil || progress != nil {
		t.Fatalf("empty request should short-circuit, got %v %v", progress, err)
	}
	progress, err := client.MyStatus(testContext(t), []int64{1, 2})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(progress) != 2 || !progress[1].Completed || progress[0].Completed {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one call, got %d", calls.Load())
	}
}
