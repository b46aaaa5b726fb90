package db

import _ "embed"

//go:embed schema.sql
var Schema string

type SniperStatus = string

const (
	SniperActive  SniperStatus = "active"
	SniperStopped SniperStatus = "stopped"
)
