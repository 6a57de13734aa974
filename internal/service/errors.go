package service

import (
	"errors"
	"fmt"
	"net/http"

	"monet-probing/internal/repository"
)

var (
	ErrInvalidTurn      = errors.New("invalid survey response payload")
	ErrScoringFailed    = errors.New("scoring failed")
	ErrGenerationFailed = errors.New("follow-up generation failed")
	ErrStaleSession     = errors.New("cached probe state disagrees with conversation history")
	ErrEmitFailed       = errors.New("failed to deliver probe event")
)

// TurnError 是回合级别的失败，Code 为返回给客户端的错误码。
type TurnError struct {
	Code int
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed (%d): %v", e.Code, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// turnError 把内部错误归类为对应的错误码。
func turnError(err error) *TurnError {
	var te *TurnError
	if errors.As(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, ErrInvalidTurn), errors.Is(err, repository.ErrInvalidIdentity):
		return &TurnError{Code: http.StatusBadRequest, Err: err}
	case errors.Is(err, repository.ErrSurveyNotFound), errors.Is(err, repository.ErrQuestionNotFound):
		return &TurnError{Code: http.StatusNotFound, Err: err}
	default:
		return &TurnError{Code: http.StatusInternalServerError, Err: err}
	}
}
