// Package store is the persistence collaborator: create/get/list/update by id
// and by secondary key, on top of gorm. Calls outside a transaction are retried
// once on a transient failure; a transaction is retried as a whole. Post, reply
// and message bodies are sealed before they are written.
package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sujalbistaa/entrenous/internal/logger"
	"github.com/sujalbistaa/entrenous/internal/models"
	"github.com/sujalbistaa/entrenous/internal/seal"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrUnknownTargetType = errors.New("unknown target type")
)

type Store struct {
	db   *gorm.DB
	box  *seal.Box
	inTx bool
}

func New(db *gorm.DB, box *seal.Box) *Store {
	return &Store{db: db, box: box}
}

// DB exposes the underlying handle for migrations and tooling.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Tx runs fn inside a single transaction. Nested calls join the outer one.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.retry(ctx, "tx", func() error {
		return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			return fn(&Store{db: gtx, box: s.box, inTx: true})
		})
	})
}

// retry runs fn and, outside a transaction, repeats it once if the first
// failure was transient.
func (s *Store) retry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || s.inTx || ctx.Err() != nil || !IsTransient(err) {
		return translate(err)
	}
	logger.Log.Warn("Retrying after transient store error",
		zap.String("op", op),
		zap.Error(err),
	)
	return translate(fn())
}

func (s *Store) q(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *Store) seal(body string) (string, error) {
	sealed, err := s.box.Seal(body)
	if err != nil {
		return "", fmt.Errorf("seal body: %w", err)
	}
	return sealed, nil
}

func (s *Store) open(kind string, id uint, sealed string) (string, error) {
	body, err := s.box.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("open %s %d: %w", kind, id, err)
	}
	return body, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicate):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// IsTransient reports failures worth one more attempt: dropped connections,
// serialization/deadlock aborts and SQLite busy errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01":
			return true
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		}
		return false
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func modelFor(targetType string) (any, error) {
	switch targetType {
	case models.TargetPost:
		return &models.Post{}, nil
	case models.TargetReply:
		return &models.Reply{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTargetType, targetType)
	}
}
