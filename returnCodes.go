package main

type ReturnCode int

const (
	NormalExit ReturnCode = iota
	InvalidArgsError
	InvalidConfigError
	ConnectError
)
