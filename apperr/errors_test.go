package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorsTestSuite struct {
	suite.Suite
}

func (s *ErrorsTestSuite) TestNewUsesCatalogMessage() {
	err := New(RoomFull)
	s.Equal(RoomFull, err.Code)
	s.Equal("room is full", err.Message)
	s.Equal("[ROOM_FULL] room is full", err.Error())

	err = New(InvalidSettings, "rounds out of range", "drawTime out of range")
	s.Equal("rounds out of range; drawTime out of range", err.Details)
}

func (s *ErrorsTestSuite) TestUnknownCodeFallsBackToInternalMessage() {
	err := New(Code("SOMETHING_ELSE"))
	s.Equal("internal server error", err.Message)
}

func (s *ErrorsTestSuite) TestWrapKeepsExistingCode() {
	inner := New(NotHost)
	wrapped := fmt.Errorf("update settings: %w", inner)

	s.Same(inner, Wrap(wrapped, Internal))
	s.True(Is(wrapped, NotHost))
	s.Equal(NotHost, CodeOf(wrapped))
}

func (s *ErrorsTestSuite) TestWrapPlainError() {
	cause := errors.New("dial tcp: refused")
	err := Wrap(cause, AuthenticationFailed)
	s.Equal(AuthenticationFailed, err.Code)
	s.ErrorIs(err, cause)
	s.Nil(Wrap(nil, Internal))
}

func (s *ErrorsTestSuite) TestErrorsIsMatchesByCode() {
	s.True(errors.Is(New(RoomNotFound, "code ABC123"), New(RoomNotFound)))
	s.False(errors.Is(New(RoomNotFound), New(RoomFull)))
}

func (s *ErrorsTestSuite) TestPublicHidesInternalText() {
	p := Public(errors.New("nil pointer dereference in room 42"))
	s.Equal(Internal, p.Code)
	s.Equal("internal server error", p.Message)

	p = Public(Wrap(errors.New("pq: connection reset"), Internal))
	s.Equal("internal server error", p.Message)

	p = Public(New(CannotStart, "not_enough_players"))
	s.Equal(CannotStart, p.Code)
	s.Equal("game cannot be started: not_enough_players", p.Message)

	p = Public(Wrap(errors.New("token is expired"), AuthenticationFailed))
	s.Equal("authentication failed", p.Message)
}

func (s *ErrorsTestSuite) TestRetryable() {
	s.True(Retryable(New(RateLimited)))
	s.False(Retryable(New(RoomFull)))
	s.False(Retryable(nil))
}

func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
