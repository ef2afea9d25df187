package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/beatbus/room-sync/pkg/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// DB is the durable store for accounts, room records and play history.
type DB struct {
	*gorm.DB
}

type MySQLConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func NewMySQLDB(cfg MySQLConfig) (*DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &DB{DB: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	logrus.WithField("component", "database").Info("Running database migrations")
	return db.AutoMigrate(
		&models.User{},
		&models.RoomRecord{},
		&models.PlayedSong{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// User operations
func (db *DB) CreateUser(user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if count > 0 {
		return ErrUsernameTaken
	}
	return db.Create(user).Error
}

func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "username = ?", username).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// Room operations
func (db *DB) CreateRoom(room *models.RoomRecord) error {
	return db.Create(room).Error
}

func (db *DB) GetRoomByID(id string) (*models.RoomRecord, error) {
	var room models.RoomRecord
	if err := db.First(&room, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (db *DB) UpdateRoom(room *models.RoomRecord) error {
	return db.Save(room).Error
}

// CloseRoom marks the room inactive. Closing twice keeps the first close time.
func (db *DB) CloseRoom(id string, at time.Time) error {
	res := db.Model(&models.RoomRecord{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{"active": false, "closed_at": at})
	if res.Error != nil {
		return fmt.Errorf("failed to close room: %w", res.Error)
	}
	return nil
}

// History operations
func (db *DB) RecordPlayedSong(song *models.PlayedSong) error {
	if song.ID == "" {
		song.ID = uuid.NewString()
	}
	return db.Create(song).Error
}

// PlayedSongs returns the room's history in play order.
func (db *DB) PlayedSongs(roomID string) ([]models.PlayedSong, error) {
	var songs []models.PlayedSong
	if err := db.Where("room_id = ?", roomID).
		Order("play_order ASC").
		Find(&songs).Error; err != nil {
		return nil, err
	}
	return songs, nil
}
