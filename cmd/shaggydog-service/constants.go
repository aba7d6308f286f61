package main

const (
	taskTypeGeneratePortraits = "sdg:generate_portraits"

	taskMetaPrefix      = "sdg:task-meta-"
	sessionPrefix       = "sdg:session-"
	flashPrefix         = "sdg:flash-"
	activeTaskKeyPrefix = "sdg:active-task-"

	sessionCookieName = "session_token"

	maxUploadSize   = 5 * 1024 * 1024
	minPasswordLen  = 6
	transitionCount = 2
)

var allowedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/jpg":  {},
	"image/gif":  {},
	"image/webp": {},
}
