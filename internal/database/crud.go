package database

import (
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLite only supports one writer at a time, so we need a lock
// whenever we write to the database
var dbMutex sync.Mutex

func GetSessions(db *gorm.DB) ([]ChatSession, error) {
	var sessions []ChatSession
	err := db.Order("created_at ASC").Find(&sessions).Error
	return sessions, err
}

func CreateSession(db *gorm.DB, session *ChatSession) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Create(session).Error
}

func GetSession(db *gorm.DB, sessionID uuid.UUID) (ChatSession, error) {
	var session ChatSession
	err := db.First(&session, "id = ?", sessionID).Error
	return session, err
}

func UpdateSessionTitle(db *gorm.DB, sessionID uuid.UUID, title string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Model(&ChatSession{ID: sessionID}).Update("title", title).Error
}

func DeleteSession(db *gorm.DB, sessionID uuid.UUID) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	if err := db.Delete(&ChatMessage{}, "session_id = ?", sessionID).Error; err != nil {
		return err
	}
	return db.Delete(&ChatSession{}, "id = ?", sessionID).Error
}

func GetChatMessages(db *gorm.DB, sessionID uuid.UUID, limit, offset int) ([]ChatMessage, error) {
	query := db.Where("session_id = ?", sessionID).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var messages []ChatMessage
	err := query.Find(&messages).Error
	return messages, err
}

func SaveChatMessage(db *gorm.DB, message *ChatMessage) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Create(message).Error
}

func DeleteChatMessage(db *gorm.DB, sessionID, messageID uuid.UUID) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Delete(&ChatMessage{}, "id = ? AND session_id = ?", messageID, sessionID).Error
}

func ClearChatMessages(db *gorm.DB, sessionID uuid.UUID) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Delete(&ChatMessage{}, "session_id = ?", sessionID).Error
}

func GetSetting(db *gorm.DB, key string) (string, error) {
	var setting Setting
	err := db.First(&setting, "key = ?", key).Error
	return setting.Value, err
}

func SetSetting(db *gorm.DB, key, value string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Setting{Key: key, Value: value}).Error
}
