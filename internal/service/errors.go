package service

import "errors"

var (
	ErrSameToken    = errors.New("src and dst are equal")
	ErrPairMismatch = errors.New("token is not in pair")
	ErrFetchPair    = errors.New("fetch pair")
)
