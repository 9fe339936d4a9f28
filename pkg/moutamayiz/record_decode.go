package moutamayiz

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Decoders from raw backend rows into typed records. Backend rows arrive as
// generic JSON objects, so numeric columns may surface as float64 and
// timestamps as RFC 3339 strings.

// MessageFromRecord decodes one community_messages row.
func MessageFromRecord(record Record) (MessageRecord, error) {
	createdAt, err := recordTime(record, "created_at")
	if err != nil {
		return MessageRecord{}, fmt.Errorf("decode message row: %w", err)
	}

	message := MessageRecord{
		ID:         recordString(record, "id"),
		TopicID:    recordString(record, "subject_id"),
		AuthorID:   recordString(record, "user_id"),
		AuthorName: recordString(record, "user_name"),
		Content:    recordString(record, "content"),
		CreatedAt:  createdAt,
	}
	if err := message.Validate(); err != nil {
		return MessageRecord{}, fmt.Errorf("decode message row: %w", err)
	}

	return message, nil
}

// NotificationFromRecord decodes one notifications row.
func NotificationFromRecord(record Record) (NotificationRecord, error) {
	createdAt, err := recordTime(record, "created_at")
	if err != nil {
		return NotificationRecord{}, fmt.Errorf("decode notification row: %w", err)
	}

	notification := NotificationRecord{
		ID:        recordString(record, "id"),
		Title:     recordString(record, "title"),
		Content:   recordString(record, "content"),
		UserID:    recordString(record, "user_id"),
		CreatedAt: createdAt,
	}
	if notification.ID == "" {
		return NotificationRecord{}, fmt.Errorf("decode notification row: missing id")
	}

	return notification, nil
}

// ReceiptFromRecord decodes one community_reads row.
func ReceiptFromRecord(record Record) (ReadReceipt, error) {
	lastReadAt, err := recordTime(record, "last_read_at")
	if err != nil {
		return ReadReceipt{}, fmt.Errorf("decode receipt row: %w", err)
	}

	receipt := ReadReceipt{
		UserID:     recordString(record, "user_id"),
		TopicID:    recordString(record, "subject_id"),
		LastReadAt: lastReadAt,
	}
	if receipt.TopicID == "" {
		return ReadReceipt{}, fmt.Errorf("decode receipt row: missing subject id")
	}

	return receipt, nil
}

// ProfileFromRecord decodes one profiles row. Missing optional columns fall
// back to the defaults the original client applied.
func ProfileFromRecord(record Record) (ProfileRecord, error) {
	id := recordString(record, "id")
	if id == "" {
		return ProfileRecord{}, fmt.Errorf("decode profile row: missing id")
	}

	profile := ProfileRecord{
		ID:            id,
		Name:          recordString(record, "name"),
		Email:         NormalizeEmail(recordString(record, "email")),
		Role:          Role(recordString(record, "role")),
		Avatar:        recordString(record, "avatar"),
		Volume:        recordInt(record, "volume"),
		Streak:        recordInt(record, "streak"),
		TotalEarnings: recordInt(record, "total_earnings"),
		XP:            recordInt(record, "xp"),
		ReferralCode:  recordString(record, "referral_code"),
		ReferredBy:    recordString(record, "referred_by"),
		ReferralCount: recordInt(record, "referral_count"),
	}
	if profile.Role == "" {
		profile.Role = RoleStudent
	}
	if profile.Volume == 0 {
		profile.Volume = 80
	}
	if profile.Streak == 0 {
		profile.Streak = 1
	}

	return profile, nil
}

// LessonFromRecord decodes one lessons_content row.
func LessonFromRecord(record Record) (LessonRecord, error) {
	lesson := LessonRecord{
		ID:        recordString(record, "id"),
		SectionID: recordString(record, "section_id"),
		Title:     recordString(record, "title"),
		Content:   recordString(record, "content"),
		Position:  recordInt(record, "position"),
	}
	if lesson.ID == "" {
		return LessonRecord{}, fmt.Errorf("decode lesson row: missing id")
	}

	return lesson, nil
}

func recordString(record Record, column string) string {
	switch value := record[column].(type) {
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	case float64:
		if value == math.Trunc(value) {
			return strconv.FormatInt(int64(value), 10)
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return ""
	}
}

func recordInt(record Record, column string) int {
	switch value := record[column].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func recordTime(record Record, column string) (time.Time, error) {
	switch value := record[column].(type) {
	case time.Time:
		return value, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999-07"} {
			if parsed, err := time.Parse(layout, value); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("column %s: unparseable timestamp %q", column, value)
	case nil:
		return time.Time{}, fmt.Errorf("column %s: missing timestamp", column)
	default:
		return time.Time{}, fmt.Errorf("column %s: unexpected timestamp type %T", column, value)
	}
}
