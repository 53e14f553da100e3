package drive

import (
	"fmt"
	"strings"
)

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// quote renders s as a Drive query string literal.
func quote(s string) string {
	return "'" + queryEscaper.Replace(s) + "'"
}

// folderQuery selects every folder that is not in the trash.
func folderQuery() string {
	return fmt.Sprintf("mimeType = %s and trashed = false", quote(FolderMimeType))
}

// fileInFolderQuery selects non-folder, non-trashed files named exactly
// name whose parents include folderID.
func fileInFolderQuery(folderID, name string) string {
	return fmt.Sprintf(
		"name = %s and %s in parents and mimeType != %s and trashed = false",
		quote(name), quote(folderID), quote(FolderMimeType),
	)
}
