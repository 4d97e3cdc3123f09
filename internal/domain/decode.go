package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Server payloads come in several historical shapes. Decoding is lenient: a field that
// fails to parse is left at its zero value instead of failing the whole record.

type fields map[string]json.RawMessage

func decodeFields(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func (f fields) raw(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

func (f fields) str(keys ...string) string {
	s, _ := f.text(keys...)
	return s
}

// text is str that also reports whether a string value was present.
func (f fields) text(keys ...string) (string, bool) {
	v, ok := f.raw(keys...)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func (f fields) i64(keys ...string) (int64, bool) {
	v, ok := f.raw(keys...)
	if !ok {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if fl, err := n.Float64(); err == nil {
			return int64(fl), true
		}
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func (f fields) num(keys ...string) (int, bool) {
	i, ok := f.i64(keys...)
	return int(i), ok
}

func (f fields) flag(keys ...string) (bool, bool) {
	v, ok := f.raw(keys...)
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, true
	}
	if i, ok := f.i64(keys...); ok {
		return i != 0, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if b, err := strconv.ParseBool(s); err == nil {
			return b, true
		}
	}
	return false, false
}

func (f fields) ts(keys ...string) *time.Time {
	s := f.str(keys...)
	if s == "" {
		return nil
	}
	if t, ok := ParseTimestamp(s); ok {
		return &t
	}
	return nil
}

// ParseTimestamp accepts RFC 3339 and the zone-less "2006-01-02 15:04:05" form, which is read as local time.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	iso := strings.Replace(s, " ", "T", 1)
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.000", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, iso, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (f fields) options() []string {
	if v, ok := f.raw("options"); ok {
		if opts, ok := decodeOptionList(v); ok {
			return opts
		}
		// Some servers store the option list as a JSON-encoded string.
		var encoded string
		if err := json.Unmarshal(v, &encoded); err == nil {
			if opts, ok := decodeOptionList(json.RawMessage(encoded)); ok {
				return opts
			}
		}
	}
	var opts []string
	for _, k := range []string{"option_a", "option_b", "option_c", "option_d"} {
		if v, ok := f.raw(k); ok {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				opts = append(opts, s)
			}
		}
	}
	return opts
}

func decodeOptionList(v json.RawMessage) ([]string, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, false
	}
	opts := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			opts = append(opts, s)
		}
	}
	return opts, true
}

func (q *Question) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*q = Question{CorrectOptionIndex: -1}
	q.ID, _ = f.i64("id")
	q.Text = f.str("question_text", "questionText", "text")
	q.Options = f.options()
	if i, ok := f.num("correct_answer_index", "correctAnswerIndex"); ok {
		q.CorrectOptionIndex = i
	}
	q.ImageURL = f.str("image_url", "imageUrl")
	q.TimePerQuestion, _ = f.num("time_per_question", "timePerQuestion")
	return nil
}

// ResolveImageURL makes server-relative upload paths absolute against origin.
func (q Question) ResolveImageURL(origin string) string {
	if strings.HasPrefix(q.ImageURL, "/uploads") {
		return strings.TrimRight(origin, "/") + q.ImageURL
	}
	return q.ImageURL
}

func (r *Room) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*r = Room{}
	r.ID, _ = f.i64("id")
	r.Code = f.str("room_code", "code")
	r.Title = f.str("title")
	if v := f.str("visibility"); v != "" {
		r.Visibility = Visibility(v)
	} else if pub, ok := f.flag("is_public", "isPublic"); ok {
		r.Visibility = VisibilityPrivate
		if pub {
			r.Visibility = VisibilityPublic
		}
	}
	r.Capacity, _ = f.num("max_participants", "capacity")
	r.TimePerQuestion, _ = f.num("time_per_question", "timePerQuestion")
	r.Status = RoomStatus(f.str("status"))
	r.StartTime = f.ts("start_time", "startTime")
	if c, ok := f.num("countdown"); ok {
		r.Countdown = &c
	}
	r.ParticipantCount, _ = f.num("participant_count", "participantCount")
	r.CoverPhotoURL = f.str("cover_photo_url", "coverPhotoUrl")
	r.HostID, _ = f.i64("host_id", "hostId")
	return nil
}

func (e *GameEvent) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*e = GameEvent{}
	e.Finished, _ = f.flag("finished")
	if v, ok := f.raw("error"); ok {
		var msg string
		var obj struct {
			Message string `json:"message"`
		}
		switch {
		case json.Unmarshal(v, &msg) == nil:
			e.Error = msg
		case json.Unmarshal(v, &obj) == nil && obj.Message != "":
			e.Error = obj.Message
		default:
			e.Error = "game error"
		}
	}
	if v, ok := f.raw("question"); ok {
		var q Question
		if err := json.Unmarshal(v, &q); err == nil {
			e.Question = &q
		}
	}
	e.TimeLeft, _ = f.num("timeLeft", "time_left")
	e.Index, _ = f.num("index")
	e.Total, _ = f.num("total")
	return nil
}

func (l *LeaderboardRow) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*l = LeaderboardRow{}
	l.Rank, _ = f.num("position", "rank")
	l.UserID, _ = f.i64("userId", "user_id")
	l.Username = f.str("username")
	l.Score, _ = f.num("score", "total_score")
	l.CorrectCount, _ = f.num("correct", "correct_count")
	l.AnsweredCount, _ = f.num("answered", "answered_count")
	l.Rooms, _ = f.num("rooms")
	return nil
}

func (p *Participant) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*p = Participant{}
	p.ID, _ = f.i64("id", "user_id", "userId")
	p.Username = f.str("username")
	if t := f.ts("joined_at", "joinedAt"); t != nil {
		p.JoinedAt = *t
	}
	return nil
}

func (p *RoomProgress) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*p = RoomProgress{}
	p.RoomID, _ = f.i64("roomId", "room_id")
	p.Participated, _ = f.flag("participated")
	p.Completed, _ = f.flag("completed")
	return nil
}

// UnmarshalJSON keeps only the fields of a room-list entry that parse. A field that is
// absent or unreadable stays nil so the merge keeps what was known before.
func (p *PartialRoom) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	*p = PartialRoom{}
	p.ID, _ = f.i64("id")
	if s, ok := f.text("title"); ok {
		p.Title = &s
	}
	if s, ok := f.text("status"); ok && s != "" {
		status := RoomStatus(s)
		p.Status = &status
	}
	if n, ok := f.num("participantCount", "participant_count"); ok {
		p.ParticipantCount = &n
	}
	if n, ok := f.num("countdown"); ok {
		p.Countdown = &n
	}
	if b, ok := f.flag("isPublic", "is_public"); ok {
		p.IsPublic = &b
	}
	if s, ok := f.text("coverPhotoUrl", "cover_photo_url"); ok {
		p.CoverPhotoURL = &s
	}
	return nil
}
