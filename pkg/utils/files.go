package utils

import (
	"path/filepath"
	"strings"
)

// AssemblyExt is the extension of generated assembly files.
const AssemblyExt = ".s"

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	// Get the directory containing the file
	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// AssemblyPath returns the sibling of inPath with its extension replaced by
// AssemblyExt.
func AssemblyPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == AssemblyExt {
		return inPath + AssemblyExt
	}
	return strings.TrimSuffix(inPath, ext) + AssemblyExt
}
