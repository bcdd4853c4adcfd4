package sidecar

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// NewUniqueIdentifier returns a random version 4 GUID in the braced
// {xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx} form Visual Studio writes.
func NewUniqueIdentifier() string {
	return "{" + uuid.New().String() + "}"
}

// EntryType picks the item type a newly associated file is recorded under.
func EntryType(name string) string {
	switch strings.ToLower(path.Ext(strings.ReplaceAll(name, `\`, "/"))) {
	case ".c", ".cc", ".cpp", ".cxx", ".c++":
		return "ClCompile"
	case ".h", ".hh", ".hpp", ".hxx", ".inl":
		return "ClInclude"
	case ".rc":
		return "ResourceCompile"
	default:
		return "Text"
	}
}
