package domain

import "time"

// Visibility decides how a room's session is driven.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// RoomStatus is the lifecycle of a room. It only moves forward.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomStarted RoomStatus = "started"
	RoomEnded   RoomStatus = "ended"
)

func (s RoomStatus) rank() int {
	switch s {
	case RoomStarted:
		return 1
	case RoomEnded:
		return 2
	default:
		return 0
	}
}

// Advance returns the later of s and next, so a stale report never regresses the status.
func (s RoomStatus) Advance(next RoomStatus) RoomStatus {
	if s == "" {
		return next
	}
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Room is the locally known view of a quiz room.
type Room struct {
	ID               int64      `json:"id"`
	Code             string     `json:"room_code,omitempty"`
	Title            string     `json:"title"`
	Visibility       Visibility `json:"visibility,omitempty"`
	Capacity         int        `json:"max_participants,omitempty"`
	TimePerQuestion  int        `json:"time_per_question,omitempty"`
	Status           RoomStatus `json:"status,omitempty"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	Countdown        *int       `json:"countdown,omitempty"`
	ParticipantCount int        `json:"participant_count"`
	CoverPhotoURL    string     `json:"cover_photo_url,omitempty"`
	HostID           int64      `json:"host_id,omitempty"`
	// Provisional is set for rooms first seen in a snapshot, before any full record was fetched.
	Provisional bool `json:"-"`
}

// IsPublic reports whether the room is self-paced.
func (r Room) IsPublic() bool {
	return r.Visibility == VisibilityPublic
}

// PartialRoom is one entry of a room-list broadcast. Nil fields were not carried.
type PartialRoom struct {
	ID               int64       `json:"id"`
	Title            *string     `json:"title,omitempty"`
	Status           *RoomStatus `json:"status,omitempty"`
	ParticipantCount *int        `json:"participantCount,omitempty"`
	Countdown        *int        `json:"countdown,omitempty"`
	IsPublic         *bool       `json:"isPublic,omitempty"`
	CoverPhotoURL    *string     `json:"coverPhotoUrl,omitempty"`
}

// RoomInfo is the response of the room info endpoint.
type RoomInfo struct {
	Room Room `json:"room"`
	// Total is the number of questions in the room.
	Total int `json:"total"`
	// Completed is true when the participant already answered every question.
	Completed bool `json:"completed"`
}

// RoomProgress is the participant's standing in one room.
type RoomProgress struct {
	RoomID       int64 `json:"roomId"`
	Participated bool  `json:"participated"`
	Completed    bool  `json:"completed"`
}

// Participant is a member of a room's lobby.
type Participant struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// Identity is the participant driving a session.
type Identity struct {
	UserID   int64
	Username string
	Token    string
}

// Question is immutable once fetched for a session.
type Question struct {
	ID                 int64    `json:"id"`
	Text               string   `json:"question_text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_answer_index"`
	ImageURL           string   `json:"image_url,omitempty"`
	TimePerQuestion    int      `json:"time_per_question,omitempty"`
}

// HasOption reports whether i addresses one of the question's options.
func (q Question) HasOption(i int) bool {
	return i >= 0 && i < len(q.Options)
}

// GameEvent is one message of a room's game-state stream.
type GameEvent struct {
	Question *Question `json:"question,omitempty"`
	TimeLeft int       `json:"timeLeft"`
	Index    int       `json:"index"`
	Total    int       `json:"total"`
	Finished bool      `json:"finished,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// AnswerSubmission is what the participant sends for one question.
type AnswerSubmission struct {
	RoomID        int64  `json:"roomId"`
	QuestionID    int64  `json:"questionId"`
	SelectedIndex int    `json:"selectedIndex"`
	ElapsedMs     *int64 `json:"elapsedMs,omitempty"`
}

// AnswerRecord is a locked answer. Correct is derived from the question, never from the client.
type AnswerRecord struct {
	RoomID        int64
	UserID        int64
	QuestionID    int64
	SelectedIndex int
	ElapsedMs     *int64
	Correct       bool
}

// NewAnswerRecord scores a selection against the question's correct option.
func NewAnswerRecord(userID int64, roomID int64, q Question, selected int, elapsedMs *int64) AnswerRecord {
	return AnswerRecord{
		RoomID:        roomID,
		UserID:        userID,
		QuestionID:    q.ID,
		SelectedIndex: selected,
		ElapsedMs:     elapsedMs,
		Correct:       q.CorrectOptionIndex >= 0 && selected == q.CorrectOptionIndex,
	}
}

// LeaderboardScope selects the room-scoped board, or the global one when RoomID is zero.
type LeaderboardScope struct {
	RoomID int64
}

// Global reports whether the scope is the global leaderboard.
func (s LeaderboardScope) Global() bool {
	return s.RoomID == 0
}

// LeaderboardRow is rendered as delivered; the server owns rank and tie-break order.
type LeaderboardRow struct {
	Rank          int    `json:"position"`
	UserID        int64  `json:"userId"`
	Username      string `json:"username"`
	Score         int    `json:"score"`
	CorrectCount  int    `json:"correct"`
	AnsweredCount int    `json:"answered"`
	Rooms         int    `json:"rooms,omitempty"`
}

// ScoreSummary is the participant's aggregate score across rooms.
type ScoreSummary struct {
	Total    int `json:"total_score"`
	Correct  int `json:"correct"`
	Answered int `json:"answered"`
}
