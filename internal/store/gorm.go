package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mikoto-dev/banchod/internal/match"
)

// User is the accounts row. Passwords are stored as bcrypt over the md5 of
// the plaintext, matching what legacy clients transmit.
type User struct {
	ID         int32  `gorm:"primaryKey"`
	Name       string `gorm:"uniqueIndex;size:32"`
	PwBcrypt   string `gorm:"size:60"`
	Privileges int32
}

type Beatmap struct {
	ID       int32  `gorm:"primaryKey"`
	Checksum string `gorm:"uniqueIndex;size:32"`
	Title    string
	Status   int32
}

// MatchResult is one completed round.
type MatchResult struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	MatchID      int32
	Name         string
	Mode         uint8
	Mods         int32
	WinCondition uint8
	TeamType     uint8
	BeatmapID    int32
	BeatmapMD5   string `gorm:"size:32"`
	PlayerCount  int32
	EndedAt      int64
}

// DB implements Store on a relational database through gorm.
type DB struct {
	log *zap.Logger
	db  *gorm.DB
}

// Open connects, migrates and returns the store.
func Open(dsn string, log *zap.Logger) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.AutoMigrate(&User{}, &Beatmap{}, &MatchResult{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &DB{log: log.Named("store"), db: db}, nil
}

func (d *DB) Authenticate(ctx context.Context, username, passwordMD5 string) (Identity, error) {
	var u User
	err := d.db.WithContext(ctx).Where("name = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrBadCredentials
	}
	if err != nil {
		return Identity{}, fmt.Errorf("store: fetch user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PwBcrypt), []byte(passwordMD5)) != nil {
		return Identity{}, ErrBadCredentials
	}
	return Identity{UserID: u.ID, Username: u.Name, Privileges: u.Privileges}, nil
}

func (d *DB) FetchBeatmapMeta(ctx context.Context, id int32) (BeatmapMeta, error) {
	var b Beatmap
	err := d.db.WithContext(ctx).First(&b, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return BeatmapMeta{}, ErrNotFound
	}
	if err != nil {
		return BeatmapMeta{}, fmt.Errorf("store: fetch beatmap: %w", err)
	}
	return BeatmapMeta{ID: b.ID, Checksum: b.Checksum, Title: b.Title, Status: b.Status}, nil
}

func (d *DB) RecordMatchResult(ctx context.Context, res match.Result) error {
	row := MatchResult{
		MatchID:      res.MatchID,
		Name:         res.Name,
		Mode:         res.Mode,
		Mods:         res.Mods,
		WinCondition: res.WinCondition,
		TeamType:     res.TeamType,
		BeatmapID:    res.BeatmapID,
		BeatmapMD5:   res.BeatmapMD5,
		PlayerCount:  int32(len(res.PlayerIDs)),
		EndedAt:      res.EndedAt.Unix(),
	}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("store: record match result: %w", err)
	}
	d.log.Debug("match result recorded", zap.Int32("match_id", res.MatchID))
	return nil
}

// HashPassword prepares a stored credential from a plaintext password.
func HashPassword(plaintext string) (string, error) {
	sum := md5.Sum([]byte(plaintext))
	hashed, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(sum[:])), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
