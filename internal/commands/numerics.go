package commands

// Numerics girc does not define.
const (
	rplCreationTime = "329"
	rplTopicWhoTime = "333"
	rplHelpStart    = "704"
	rplHelpTxt      = "705"
	rplEndOfHelp    = "706"
	errHelpNotFound = "524"
)

const (
	userModes    = "aio"
	channelModes = "p"
)
