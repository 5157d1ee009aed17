package apperror

import "errors"

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrPlayerNotFound = errors.New("player not found")

	ErrForbidden = errors.New("action is not allowed for this player")

	ErrMatchFull        = errors.New("match is already full")
	ErrAlreadyJoined    = errors.New("player already joined this match")
	ErrMatchNotWaiting  = errors.New("match is not in waiting state")
	ErrMatchNotPlaying  = errors.New("match is not in playing state")
	ErrMatchNotFinished = errors.New("match is not finished")

	ErrInsufficientCards = errors.New("not enough cards to deal a round")
	ErrInvalidAction     = errors.New("unknown action")

	ErrNotYourTurn  = errors.New("it's not your turn")
	ErrWrongStep    = errors.New("action is not legal in the current step")
	ErrInvalidSlot  = errors.New("invalid hand slot index")
	ErrCardRevealed = errors.New("card is already revealed")
	ErrPileEmpty    = errors.New("pile is empty")
)
