package handlers

const (
	msgUnauthorized = "🚫 You are not authorized to use this command."
	msgNoBots       = "No bot is mounted."
	msgHelp         = `nlud admin commands:
/bots - list mounted bots
/mount <bot> - mount a bot
/unmount <bot> - unmount a bot
/train <bot> <lang> - queue a training
/cancel <bot> <lang> - cancel a training
/status <bot> <lang> - show the training state
/predict <bot> <lang> <text> - classify an utterance
/health - show the engine health`
)
