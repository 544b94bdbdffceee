package domain

import "errors"

var (
	ErrRaceNotFound  = errors.New("race not found")
	ErrRouteNotFound = errors.New("route not found")
	ErrNoRoute       = errors.New("race has no route")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrUnauthorized  = errors.New("unauthorized")
)
