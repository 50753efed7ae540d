package fileInfo

import (
	"errors"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// FileNode describes one file offered for transfer: its name, size, detected
// mime type and content checksum. The path never leaves the sending machine.
type FileNode struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Path     string `json:"-"`
}

var ErrIsDirectory = errors.New("directories cannot be offered")

// CreateNode stats the file, detects its mime type and computes the content
// checksum. Directories are rejected; transfers are one file per link.
func CreateNode(path string) (FileNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileNode{}, err
	}
	if info.IsDir() {
		return FileNode{}, ErrIsDirectory
	}

	node := FileNode{
		Name: info.Name(),
		Size: info.Size(),
		Path: path,
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		node.MimeType = "application/octet-stream"
	} else {
		node.MimeType = mime.String()
	}

	checksum, err := node.CalcChecksum()
	if err != nil {
		return FileNode{}, err
	}
	node.Checksum = checksum
	return node, nil
}
