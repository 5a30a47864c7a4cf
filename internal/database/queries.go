package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
)

const (
	addMembershipQuery = "INSERT INTO memberships (account_id, room_id, created_at) " +
		"VALUES ($1, $2, $3) ON CONFLICT (account_id, room_id) DO NOTHING"
	addReceiptQuery = "INSERT INTO read_receipts (message_id, account_id, read_at) " +
		"VALUES ($1, $2, $3) ON CONFLICT (message_id, account_id) DO NOTHING"
)

func (db *PgClassChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Account{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, is_instructor, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, email, is_instructor, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.IsInstructor,
		time.Now().UTC(),
	)

	var a Account
	err = res.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.IsInstructor,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	// every account carries chat settings from the start
	_, err = tx.Exec(
		"INSERT INTO chat_settings (account_id) VALUES ($1)",
		a.Id,
	)
	if err != nil {
		return Account{}, err
	}

	if err = tx.Commit(); err != nil {
		return Account{}, err
	}

	return a, nil
}

func (db *PgClassChatRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, username, email, is_instructor, created_at, updated_at",
		params.AccountId,
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.IsInstructor,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgClassChatRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, is_instructor, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.IsInstructor,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgClassChatRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, is_instructor, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.IsInstructor,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgClassChatRepository) CreateCourse(params CreateCourseParams) (Course, error) {
	res := db.conn.QueryRow(
		"INSERT INTO courses (title, slug, instructor_id, status, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, title, slug, instructor_id, status, created_at, updated_at",
		params.Title,
		params.Slug,
		params.InstructorId,
		params.Status,
		time.Now().UTC(),
	)

	var c Course
	err := res.Scan(
		&c.Id,
		&c.Title,
		&c.Slug,
		&c.InstructorId,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	return c, err
}

func (db *PgClassChatRepository) GetCourseById(courseId int) (Course, error) {
	row := db.conn.QueryRow(
		"SELECT id, title, slug, instructor_id, status, created_at, updated_at FROM courses "+
			"WHERE id = $1 LIMIT 1",
		courseId,
	)

	var c Course
	err := row.Scan(
		&c.Id,
		&c.Title,
		&c.Slug,
		&c.InstructorId,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	return c, err
}

func (db *PgClassChatRepository) CreateEnrollment(studentId, courseId int) (Enrollment, error) {
	// re-enrolling reactivates the existing row
	res := db.conn.QueryRow(
		"INSERT INTO enrollments (student_id, course_id, is_active, enrolled_at) "+
			"VALUES ($1, $2, TRUE, $3) "+
			"ON CONFLICT (student_id, course_id) DO UPDATE SET is_active = TRUE "+
			"RETURNING id, student_id, course_id, is_active, enrolled_at",
		studentId,
		courseId,
		time.Now().UTC(),
	)

	var e Enrollment
	err := res.Scan(
		&e.Id,
		&e.StudentId,
		&e.CourseId,
		&e.IsActive,
		&e.EnrolledAt,
	)

	return e, err
}

func (db *PgClassChatRepository) DeactivateEnrollment(studentId, courseId int) error {
	_, err := db.conn.Exec(
		"UPDATE enrollments SET is_active = FALSE WHERE student_id = $1 AND course_id = $2",
		studentId,
		courseId,
	)

	return err
}

func (db *PgClassChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var courseId any
	if params.CourseId != 0 {
		courseId = params.CourseId
	}

	res := tx.QueryRow(
		"INSERT INTO rooms (external_id, name, kind, course_id, created_by, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, external_id, name, kind, COALESCE(course_id, 0), created_by, is_active, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.Kind,
		courseId,
		params.CreatedBy,
		time.Now().UTC(),
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Kind,
		&room.CourseId,
		&room.CreatedBy,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	// the creator always joins their own room
	_, err = tx.Exec(addMembershipQuery, params.CreatedBy, room.Id, time.Now().UTC())
	if err != nil {
		return Room{}, err
	}

	if room.Kind == RoomKindCourse && room.CourseId != 0 {
		// seed membership with every actively enrolled student
		_, err = tx.Exec(
			"INSERT INTO memberships (account_id, room_id, created_at) "+
				"SELECT e.student_id, $1, $2 FROM enrollments e "+
				"WHERE e.course_id = $3 AND e.is_active "+
				"ON CONFLICT (account_id, room_id) DO NOTHING",
			room.Id,
			time.Now().UTC(),
			room.CourseId,
		)
		if err != nil {
			return Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

// GetOrCreateCourseRoom returns the course's chat room, creating it on
// first use. The unique course_id constraint makes concurrent creation
// attempts collapse into a single room.
func (db *PgClassChatRepository) GetOrCreateCourseRoom(courseId int, externalId string) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var course Course
	err = tx.QueryRow(
		"SELECT id, title, instructor_id FROM courses WHERE id = $1 LIMIT 1",
		courseId,
	).Scan(&course.Id, &course.Title, &course.InstructorId)
	if err != nil {
		return Room{}, err
	}

	var room Room
	err = tx.QueryRow(
		"INSERT INTO rooms (external_id, name, kind, course_id, created_by, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"ON CONFLICT (course_id) DO NOTHING "+
			"RETURNING id, external_id, name, kind, COALESCE(course_id, 0), created_by, is_active, created_at, updated_at",
		externalId,
		fmt.Sprintf("Chat for %s", course.Title),
		RoomKindCourse,
		course.Id,
		course.InstructorId,
		time.Now().UTC(),
	).Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Kind,
		&room.CourseId,
		&room.CreatedBy,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	switch {
	case err == nil:
		// newly created, admit the instructor
		_, err = tx.Exec(addMembershipQuery, course.InstructorId, room.Id, time.Now().UTC())
		if err != nil {
			return Room{}, err
		}
	case errors.Is(err, sql.ErrNoRows):
		// room already existed
		err = tx.QueryRow(
			"SELECT id, external_id, name, kind, COALESCE(course_id, 0), created_by, is_active, created_at, updated_at "+
				"FROM rooms WHERE course_id = $1 LIMIT 1",
			course.Id,
		).Scan(
			&room.Id,
			&room.ExternalId,
			&room.Name,
			&room.Kind,
			&room.CourseId,
			&room.CreatedBy,
			&room.IsActive,
			&room.CreatedAt,
			&room.UpdatedAt,
		)
		if err != nil {
			return Room{}, err
		}
	default:
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgClassChatRepository) GetCourseRoom(courseId int) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, kind, COALESCE(course_id, 0), created_by, is_active, created_at, updated_at "+
			"FROM rooms WHERE course_id = $1 LIMIT 1",
		courseId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Kind,
		&room.CourseId,
		&room.CreatedBy,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgClassChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, kind, COALESCE(course_id, 0), created_by, is_active, created_at, updated_at "+
			"FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Kind,
		&room.CourseId,
		&room.CreatedBy,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgClassChatRepository) GetRoomWithMembers(roomId int) (*Room, error) {
	query := `
		SELECT
				r.id,
				r.external_id,
				r.name,
				r.kind,
				COALESCE(r.course_id, 0),
				r.created_by,
				r.is_active,
				r.created_at,
				r.updated_at,
				m.account_id,
				a.username,
				m.created_at AS membership_created_at
		FROM rooms r
		LEFT JOIN memberships m ON r.id = m.room_id
		LEFT JOIN accounts a ON m.account_id = a.id
		WHERE r.id = $1;
`

	rows, err := db.conn.Query(query, roomId)
	if err != nil {
		return nil, fmt.Errorf("fetch room with members: %w", err)
	}
	defer rows.Close()

	var room *Room
	for rows.Next() {
		var (
			r                   Room
			accountId           sql.NullInt64
			username            sql.NullString
			membershipCreatedAt sql.NullTime
		)

		err := rows.Scan(
			&r.Id,
			&r.ExternalId,
			&r.Name,
			&r.Kind,
			&r.CourseId,
			&r.CreatedBy,
			&r.IsActive,
			&r.CreatedAt,
			&r.UpdatedAt,
			&accountId,
			&username,
			&membershipCreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if room == nil {
			r.Members = make([]Member, 0)
			room = &r
		}

		if accountId.Valid && username.Valid {
			room.Members = append(room.Members, Member{
				AccountId: int(accountId.Int64),
				Username:  username.String,
				RoomId:    room.Id,
				CreatedAt: membershipCreatedAt.Time,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if room == nil {
		return nil, sql.ErrNoRows
	}

	return room, nil
}

func (db *PgClassChatRepository) DeactivateRoom(roomId int) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET is_active = FALSE, updated_at = $2 WHERE id = $1",
		roomId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgClassChatRepository) ListRoomsForAccount(accountId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.external_id, r.name, r.kind, COALESCE(r.course_id, 0), r.created_by, r.created_at "+
			"FROM memberships m JOIN rooms r ON r.id = m.room_id "+
			"WHERE m.account_id = $1 AND r.is_active ORDER BY r.created_at DESC",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err = rows.Scan(&room.Id, &room.ExternalId, &room.Name, &room.Kind, &room.CourseId, &room.CreatedBy, &room.CreatedAt); err != nil {
			break
		}

		rooms = append(rooms, room)
	}
	return rooms, err
}

func (db *PgClassChatRepository) AddMembership(accountId, roomId int) error {
	_, err := db.conn.Exec(addMembershipQuery, accountId, roomId, time.Now().UTC())
	return err
}

func (db *PgClassChatRepository) RemoveMembership(accountId, roomId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM memberships WHERE account_id = $1 AND room_id = $2",
		accountId,
		roomId,
	)

	return err
}

func (db *PgClassChatRepository) IsMember(accountId, roomId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT 1 FROM memberships WHERE account_id = $1 AND room_id = $2 LIMIT 1",
		accountId,
		roomId,
	)

	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	return err == nil, err
}

// AuthorizeMember reports whether the account may operate in the room.
// Existing members are allowed outright. For course rooms the course's
// instructor and actively enrolled students are admitted implicitly and
// the membership is persisted so later checks hit the first rule.
func (db *PgClassChatRepository) AuthorizeMember(accountId, roomId int) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var one int
	err = tx.QueryRow(
		"SELECT 1 FROM memberships WHERE account_id = $1 AND room_id = $2 LIMIT 1",
		accountId,
		roomId,
	).Scan(&one)
	if err == nil {
		return true, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	var kind string
	var courseId sql.NullInt64
	err = tx.QueryRow(
		"SELECT kind, course_id FROM rooms WHERE id = $1 AND is_active LIMIT 1",
		roomId,
	).Scan(&kind, &courseId)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.Commit()
		return false, err
	}
	if err != nil {
		return false, err
	}

	if kind != RoomKindCourse || !courseId.Valid {
		return false, tx.Commit()
	}

	err = tx.QueryRow(
		"SELECT 1 FROM courses c "+
			"LEFT JOIN enrollments e ON e.course_id = c.id AND e.student_id = $2 AND e.is_active "+
			"WHERE c.id = $1 AND (c.instructor_id = $2 OR e.id IS NOT NULL) LIMIT 1",
		courseId.Int64,
		accountId,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.Commit()
		return false, err
	}
	if err != nil {
		return false, err
	}

	_, err = tx.Exec(addMembershipQuery, accountId, roomId, time.Now().UTC())
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// CreateMessage persists a message together with the sender's read
// receipt in a single transaction. A reply_to that does not reference a
// message in the same room is dropped.
func (db *PgClassChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var replyTo any
	if params.ReplyToId != 0 {
		var id int
		err = tx.QueryRow(
			"SELECT id FROM messages WHERE id = $1 AND room_id = $2 LIMIT 1",
			params.ReplyToId,
			params.RoomId,
		).Scan(&id)
		switch {
		case err == nil:
			replyTo = id
		case errors.Is(err, sql.ErrNoRows):
			err = nil
		default:
			return Message{}, err
		}
	}

	messageType := params.MessageType
	if messageType == "" {
		messageType = MessageTypeText
	}

	var msg Message
	err = tx.QueryRow(
		"INSERT INTO messages (room_id, sender_id, content, message_type, reply_to_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, room_id, sender_id, content, message_type, COALESCE(reply_to_id, 0), created_at",
		params.RoomId,
		params.SenderId,
		params.Content,
		messageType,
		replyTo,
		time.Now().UTC(),
	).Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.SenderId,
		&msg.Content,
		&msg.MessageType,
		&msg.ReplyToId,
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	// the sender has read their own message
	_, err = tx.Exec(addReceiptQuery, msg.Id, msg.SenderId, msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}

	err = tx.QueryRow(
		"SELECT username FROM accounts WHERE id = $1 LIMIT 1",
		msg.SenderId,
	).Scan(&msg.Sender)
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

// MarkMessageRead records a read receipt. Unknown messages and repeat
// reads are no-ops.
func (db *PgClassChatRepository) MarkMessageRead(messageId, accountId, roomId int) error {
	var one int
	err := db.conn.QueryRow(
		"SELECT 1 FROM messages WHERE id = $1 AND room_id = $2 LIMIT 1",
		messageId,
		roomId,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(addReceiptQuery, messageId, accountId, time.Now().UTC())
	return err
}

// ListMessages returns one page of a room's history, most recent page
// first, reversed into chronological order for display.
func (db *PgClassChatRepository) ListMessages(roomId, page, pageSize int) ([]Message, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.room_id, m.sender_id, a.username, m.content, m.message_type, "+
			"COALESCE(m.reply_to_id, 0), m.is_edited, m.created_at "+
			"FROM messages m JOIN accounts a ON a.id = m.sender_id "+
			"WHERE m.room_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT $2 OFFSET $3",
		roomId,
		pageSize,
		(page-1)*pageSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, pageSize)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.RoomId, &msg.SenderId, &msg.Sender, &msg.Content,
			&msg.MessageType, &msg.ReplyToId, &msg.IsEdited, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}

	return lo.Reverse(messages), err
}

func (db *PgClassChatRepository) UnreadCount(roomId, accountId int) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages m "+
			"JOIN rooms r ON r.id = m.room_id "+
			"LEFT JOIN chat_settings cs ON cs.account_id = $2 "+
			"WHERE m.room_id = $1 AND m.sender_id <> $2 "+
			"AND m.created_at > COALESCE((cs.last_seen->>r.external_id)::timestamptz, r.created_at)",
		roomId,
		accountId,
	)

	var count int
	err := row.Scan(&count)
	return count, err
}

func (db *PgClassChatRepository) GetChatSettings(accountId int) (ChatSettings, error) {
	row := db.conn.QueryRow(
		"SELECT account_id, notifications_enabled, sound_enabled, show_online_status, last_seen "+
			"FROM chat_settings WHERE account_id = $1 LIMIT 1",
		accountId,
	)

	return scanChatSettings(row)
}

func (db *PgClassChatRepository) UpdateChatSettings(params UpdateChatSettingsParams) (ChatSettings, error) {
	row := db.conn.QueryRow(
		"UPDATE chat_settings SET notifications_enabled = $2, sound_enabled = $3, show_online_status = $4 "+
			"WHERE account_id = $1 "+
			"RETURNING account_id, notifications_enabled, sound_enabled, show_online_status, last_seen",
		params.AccountId,
		params.NotificationsEnabled,
		params.SoundEnabled,
		params.ShowOnlineStatus,
	)

	return scanChatSettings(row)
}

func (db *PgClassChatRepository) SetLastSeen(accountId int, roomExternalId string, seenAt time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE chat_settings SET last_seen = jsonb_set(last_seen, ARRAY[$2], to_jsonb($3::timestamptz), true) "+
			"WHERE account_id = $1",
		accountId,
		roomExternalId,
		seenAt.UTC(),
	)

	return err
}

func scanChatSettings(row *sql.Row) (ChatSettings, error) {
	var cs ChatSettings
	var lastSeen []byte
	err := row.Scan(
		&cs.AccountId,
		&cs.NotificationsEnabled,
		&cs.SoundEnabled,
		&cs.ShowOnlineStatus,
		&lastSeen,
	)
	if err != nil {
		return ChatSettings{}, err
	}

	cs.LastSeen = make(map[string]time.Time)
	if err := json.Unmarshal(lastSeen, &cs.LastSeen); err != nil {
		return ChatSettings{}, fmt.Errorf("decode last_seen: %w", err)
	}

	return cs, nil
}
