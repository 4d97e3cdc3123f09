package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"quiz-session-engine/internal/domain"
)

func TestSubjects(t *testing.T) {
	if got := GameSubject(12); got != "quiz.rooms.12.game" {
		t.Fatalf("unexpected game subject %q", got)
	}
	if got := LeaderboardSubject(domain.LeaderboardScope{}); got != SubjectGlobalLeaderboard {
		t.Fatalf("unexpected global subject %q", got)
	}
	if got := LeaderboardSubject(domain.LeaderboardScope{RoomID: 4}); got != "quiz.leaderboard.room.4" {
		t.Fatalf("unexpected room subject %q", got)
	}
}

func TestPumpDecodesInOrderAndSkipsGarbage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan *nats.Msg, 4)
	out := make(chan domain.GameEvent)
	go pump(ctx, msgs, out, zap.NewNop().Sugar())

	msgs <- &nats.Msg{Data: []byte(`{"question":{"id":1,"options":["a","b"]},"index":0,"timeLeft":9}`)}
	msgs <- &nats.Msg{Data: []byte(`not json`)}
	msgs <- &nats.Msg{Data: []byte(`{"finished":true}`)}

	first := receive(t, out)
	if first.Question == nil || first.Question.ID != 1 || first.TimeLeft != 9 {
		t.Fatalf("unexpected first event %+v", first)
	}
	if second := receive(t, out); !second.Finished {
		t.Fatalf("expected finished event, got %+v", second)
	}

	cancel()
	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("pump did not stop")
	}
}

func receive(t *testing.T, out <-chan domain.GameEvent) domain.GameEvent {
	t.Helper()
	select {
	case ev := <-out:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event received")
		return domain.GameEvent{}
	}
}
