package media

import (
	"errors"
	"time"
)

// ErrOutsideLibrary is returned for paths that escape the media directory.
var ErrOutsideLibrary = errors.New("path outside media directory")

// Video is one playable file of the library.
type Video struct {
	Title        string    `json:"title"`
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	RelativePath string    `json:"relativePath"`
	Extension    string    `json:"extension"`
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
}
