package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	sessionCmds
	browseCmds
	gameCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Managing the session with the target", sessionCmds},
	{"Browsing classes and values", browseCmds},
	{"Reading game state", gameCmds},
	{"Other commands", otherCmds},
}
