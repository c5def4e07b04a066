package models

// ModType describes how a mod artifact is laid out on disk.
type ModType string

const (
	ZIP ModType = "zip"
	CS  ModType = "cs"
	DIR ModType = "dir"
)

func (t ModType) String() string {
	return string(t)
}
