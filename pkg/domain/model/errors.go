package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrInvalidSyncPass = goerr.New("invalid sync pass descriptor")
)
